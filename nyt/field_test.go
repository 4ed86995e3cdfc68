package nyt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArticle() *ScrapedArticle {
	section := "B"
	return &ScrapedArticle{
		URI:            "nyt://article/42",
		WebURL:         "https://example.com/42",
		Snippet:        "A <i>quiet</i> day.",
		PrintSection:   &section,
		Headline:       ScrapedHeadline{Main: "Quiet Day on the Floor"},
		PubDate:        "1990-06-15T04:00:00+0000",
		DocumentType:   "article",
		NewsDesk:       "Business",
		TypeOfMaterial: "News",
	}
}

func TestTransform_HeadlineMain(t *testing.T) {
	a := sampleArticle()

	point, ok := Transform(a, HeadlineMain)
	require.True(t, ok)

	assert.Equal(t, StableID(a.URI), point.ID)
	assert.Equal(t, "Quiet Day on the Floor", point.Text)
	assert.Empty(t, point.Vector)
	assert.Equal(t, a.URI, point.Info.URI)
	assert.Equal(t, 1990, point.Info.Year)
	assert.Equal(t, 6, point.Info.Month)
	assert.Equal(t, 15, point.Info.Day)
	assert.Equal(t, "B", point.Info.PrintSection)
	assert.Equal(t, "Business", point.Info.NewsDesk)
}

func TestTransform_Snippet(t *testing.T) {
	point, ok := Transform(sampleArticle(), Snippet)
	require.True(t, ok)
	assert.Equal(t, "A quiet day.", point.Text)
}

func TestTransform_DropsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *ScrapedArticle)
	}{
		{"missing uri", func(a *ScrapedArticle) { a.URI = "" }},
		{"bad pub date", func(a *ScrapedArticle) { a.PubDate = "1990-06-15" }},
		{"empty headline", func(a *ScrapedArticle) { a.Headline.Main = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleArticle()
			tt.mutate(a)
			_, ok := Transform(a, HeadlineMain)
			assert.False(t, ok)
		})
	}

	_, ok := Transform(nil, HeadlineMain)
	assert.False(t, ok)
}

type kickerField struct{}

func (kickerField) Name() string { return "Kicker" }

func (kickerField) Extract(a *ScrapedArticle) (string, bool) {
	if a.Headline.Kicker == nil {
		return "", false
	}
	return *a.Headline.Kicker, true
}

func TestFieldRegistry(t *testing.T) {
	f, err := FieldByName("headlinemain")
	require.NoError(t, err)
	assert.Equal(t, HeadlineMain, f)

	_, err = FieldByName("Kicker")
	assert.ErrorIs(t, err, ErrUnknownField)

	RegisterField(kickerField{})
	f, err = FieldByName("Kicker")
	require.NoError(t, err)
	assert.Equal(t, "Kicker", f.Name())
	assert.Contains(t, FieldNames(), "Kicker")
}

func TestScrapedArticle_Frontend(t *testing.T) {
	a := sampleArticle()
	caption := "Traders at rest"
	a.Multimedia = []ScrapedMultimedia{{URL: "images/1990/06/15/floor.jpg", Caption: &caption}}

	front := a.Frontend()
	assert.Equal(t, a.URI, front.URI)
	assert.Equal(t, "Quiet Day on the Floor", front.HeadlineMain)
	assert.Equal(t, "A <i>quiet</i> day.", front.Snippet)
	assert.Equal(t, 1990, front.Year)
	assert.Equal(t, 6, front.Month)
	assert.Equal(t, 15, front.Day)
	assert.Equal(t, "B", front.PrintSection)
	require.NotNil(t, front.Image)
	assert.Equal(t, "images/1990/06/15/floor.jpg", front.Image.URL)
	assert.Equal(t, caption, front.Image.Caption)

	a.PubDate = "garbage"
	a.Multimedia = nil
	front = a.Frontend()
	assert.Zero(t, front.Year)
	assert.Nil(t, front.Image)
}

func TestContemporaryArticle_Frontend(t *testing.T) {
	a := &ContemporaryArticle{
		URI:           "nyt://article/today",
		URL:           "https://example.com/today",
		Title:         "Markets Rally",
		Abstract:      "Stocks rose.",
		Section:       "business",
		ItemType:      "Article",
		PublishedDate: "2024-03-05T09:00:00-05:00",
		Multimedia:    []ContemporaryMultimedia{{URL: "https://example.com/a.jpg", Caption: "Floor"}},
	}
	front, err := a.Frontend()
	require.NoError(t, err)
	assert.Equal(t, "Markets Rally", front.HeadlineMain)
	assert.Equal(t, "Stocks rose.", front.Snippet)
	assert.Equal(t, 2024, front.Year)
	assert.Equal(t, 3, front.Month)
	assert.Equal(t, 5, front.Day)
	require.NotNil(t, front.Image)
	assert.Equal(t, "Floor", front.Image.Caption)

	a.PublishedDate = ""
	_, err = a.Frontend()
	assert.ErrorIs(t, err, ErrInvalidPubDate)
}

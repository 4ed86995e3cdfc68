package nyt

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ArchiveDocument is the body returned by the archive endpoint and stored
// on disk, one per month.
type ArchiveDocument struct {
	Copyright string          `json:"copyright"`
	Response  ArchiveResponse `json:"response"`
}

type ArchiveResponse struct {
	Meta ArchiveMeta      `json:"meta"`
	Docs []ScrapedArticle `json:"docs"`
}

type ArchiveMeta struct {
	Hits int `json:"hits"`
}

// ScrapedArticle is one archive record.
type ScrapedArticle struct {
	URI            string              `json:"uri"`
	WebURL         string              `json:"web_url"`
	Snippet        string              `json:"snippet"`
	PrintPage      *string             `json:"print_page"`
	PrintSection   *string             `json:"print_section"`
	Source         string              `json:"source"`
	Multimedia     []ScrapedMultimedia `json:"multimedia"`
	Headline       ScrapedHeadline     `json:"headline"`
	Keywords       []ScrapedKeyword    `json:"keywords"`
	PubDate        string              `json:"pub_date"`
	DocumentType   string              `json:"document_type"`
	NewsDesk       string              `json:"news_desk"`
	SectionName    string              `json:"section_name"`
	Byline         ScrapedByline       `json:"byline"`
	TypeOfMaterial string              `json:"type_of_material"`
}

type ScrapedHeadline struct {
	Main          string  `json:"main"`
	Kicker        *string `json:"kicker"`
	ContentKicker *string `json:"content_kicker"`
	PrintHeadline string  `json:"print_headline"`
	Name          *string `json:"name"`
	SEO           *string `json:"seo"`
	Sub           *string `json:"sub"`
}

type ScrapedMultimedia struct {
	Rank     int                     `json:"rank"`
	Subtype  string                  `json:"subtype"`
	Caption  *string                 `json:"caption"`
	Credit   *string                 `json:"credit"`
	Type     string                  `json:"type"`
	URL      string                  `json:"url"`
	Height   int                     `json:"height"`
	Width    int                     `json:"width"`
	Legacy   ScrapedMultimediaLegacy `json:"legacy"`
	CropName string                  `json:"crop_name"`
}

type ScrapedMultimediaLegacy struct {
	XLarge       *string `json:"xlarge"`
	XLargeWidth  *int    `json:"xlargewidth"`
	XLargeHeight *int    `json:"xlargeheight"`
}

type ScrapedKeyword struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Rank  int    `json:"rank"`
	Major string `json:"major"`
}

type ScrapedPerson struct {
	Firstname    string  `json:"firstname"`
	Middlename   *string `json:"middlename"`
	Lastname     string  `json:"lastname"`
	Qualifier    *string `json:"qualifier"`
	Title        *string `json:"title"`
	Role         string  `json:"role"`
	Organization string  `json:"organization"`
	Rank         int     `json:"rank"`
}

type ScrapedByline struct {
	Original     string          `json:"original"`
	Person       []ScrapedPerson `json:"person"`
	Organization *string         `json:"organization"`
}

// FirstMedia returns the article's first multimedia entry, if any.
func (a *ScrapedArticle) FirstMedia() (*ScrapedMultimedia, bool) {
	if len(a.Multimedia) == 0 {
		return nil, false
	}
	return &a.Multimedia[0], true
}

// HomepageDocument is the body returned by the top stories endpoint.
type HomepageDocument struct {
	Status      string                `json:"status"`
	Copyright   string                `json:"copyright"`
	Section     string                `json:"section"`
	LastUpdated string                `json:"last_updated"`
	NumResults  int                   `json:"num_results"`
	Results     []ContemporaryArticle `json:"results"`
}

// ContemporaryArticle is one record of the homepage snapshot. Results are
// in homepage order.
type ContemporaryArticle struct {
	Section           string                   `json:"section"`
	Subsection        string                   `json:"subsection"`
	Title             string                   `json:"title"`
	Abstract          string                   `json:"abstract"`
	URL               string                   `json:"url"`
	URI               string                   `json:"uri"`
	Byline            string                   `json:"byline"`
	ItemType          string                   `json:"item_type"`
	UpdatedDate       string                   `json:"updated_date"`
	CreatedDate       string                   `json:"created_date"`
	PublishedDate     string                   `json:"published_date"`
	MaterialTypeFacet string                   `json:"material_type_facet"`
	Kicker            string                   `json:"kicker"`
	DesFacet          []string                 `json:"des_facet"`
	OrgFacet          []string                 `json:"org_facet"`
	PerFacet          []string                 `json:"per_facet"`
	GeoFacet          []string                 `json:"geo_facet"`
	Multimedia        []ContemporaryMultimedia `json:"multimedia"`
	ShortURL          string                   `json:"short_url"`
}

type ContemporaryMultimedia struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Caption   string `json:"caption"`
	Copyright string `json:"copyright"`
}

// DateParts returns the year, month and day of the published date.
func (a *ContemporaryArticle) DateParts() (year, month, day int, err error) {
	t, err := ParsePubDate(a.PublishedDate)
	if err != nil {
		return 0, 0, 0, err
	}
	return t.Year(), int(t.Month()), t.Day(), nil
}

// FirstMedia returns the article's first multimedia entry, if any.
func (a *ContemporaryArticle) FirstMedia() (*ContemporaryMultimedia, bool) {
	if len(a.Multimedia) == 0 {
		return nil, false
	}
	return &a.Multimedia[0], true
}

// archive dates look like 1985-03-02T05:00:00+0000
const archiveDateLayout = "2006-01-02T15:04:05-0700"

var pubDateLayouts = []string{archiveDateLayout, time.RFC3339}

// ParsePubDate parses a publication timestamp in either the archive or the
// homepage format. The date is taken in the timestamp's own offset.
func ParsePubDate(s string) (time.Time, error) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPubDate, s)
}

var snippetMarkup = regexp.MustCompile(`<[^>]*\/?>`)

// CleanSnippet strips stray markup fragments found in some archive snippets.
func CleanSnippet(snippet string) string {
	return snippetMarkup.ReplaceAllString(snippet, "")
}

// StableID maps an article URI to its point id. The same URI always yields
// the same id, which is what makes vector upserts idempotent.
func StableID(uri string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(uri))
}

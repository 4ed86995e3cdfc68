package nyt

import "github.com/cyclicism/crunch/core"

// Frontend flattens an archive record into its display form. The snippet
// is kept raw; stores clean it on read. An unparseable publication date
// leaves the date fields zero.
func (a *ScrapedArticle) Frontend() core.FrontendArticle {
	front := core.FrontendArticle{
		URI:            a.URI,
		WebURL:         a.WebURL,
		HeadlineMain:   a.Headline.Main,
		Snippet:        a.Snippet,
		DocumentType:   a.DocumentType,
		NewsDesk:       a.NewsDesk,
		TypeOfMaterial: a.TypeOfMaterial,
	}
	if a.PrintSection != nil {
		front.PrintSection = *a.PrintSection
	}
	if t, err := ParsePubDate(a.PubDate); err == nil {
		front.Year, front.Month, front.Day = t.Year(), int(t.Month()), t.Day()
	}
	if m, ok := a.FirstMedia(); ok {
		img := &core.FrontendImage{URL: m.URL}
		if m.Caption != nil {
			img.Caption = *m.Caption
		}
		front.Image = img
	}
	return front
}

// Frontend maps a homepage record onto the display form. Title and
// abstract stand in for headline and snippet; section and item type stand
// in for news desk and document type.
func (a *ContemporaryArticle) Frontend() (core.FrontendArticle, error) {
	year, month, day, err := a.DateParts()
	if err != nil {
		return core.FrontendArticle{}, err
	}
	front := core.FrontendArticle{
		URI:            a.URI,
		WebURL:         a.URL,
		HeadlineMain:   a.Title,
		Snippet:        a.Abstract,
		Year:           year,
		Month:          month,
		Day:            day,
		DocumentType:   a.ItemType,
		NewsDesk:       a.Section,
		TypeOfMaterial: a.MaterialTypeFacet,
	}
	if m, ok := a.FirstMedia(); ok {
		front.Image = &core.FrontendImage{URL: m.URL, Caption: m.Caption}
	}
	return front, nil
}

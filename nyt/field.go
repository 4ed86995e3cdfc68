package nyt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cyclicism/crunch/core"
)

// Field selects the text of an article that gets embedded.
// New fields can be registered without touching the pipeline.
type Field interface {
	// Name identifies the field in collection names and configuration.
	Name() string
	// Extract returns the text to embed, or false if the article has none.
	Extract(article *ScrapedArticle) (string, bool)
}

type headlineMain struct{}

func (headlineMain) Name() string { return "HeadlineMain" }

func (headlineMain) Extract(a *ScrapedArticle) (string, bool) {
	text := strings.TrimSpace(a.Headline.Main)
	return text, text != ""
}

type snippet struct{}

func (snippet) Name() string { return "Snippet" }

func (snippet) Extract(a *ScrapedArticle) (string, bool) {
	text := strings.TrimSpace(CleanSnippet(a.Snippet))
	return text, text != ""
}

var (
	// HeadlineMain embeds the main headline. This is the default.
	HeadlineMain Field = headlineMain{}
	// Snippet embeds the cleaned snippet.
	Snippet Field = snippet{}
)

var (
	fieldsMu sync.RWMutex
	fields   = map[string]Field{
		HeadlineMain.Name(): HeadlineMain,
		Snippet.Name():      Snippet,
	}
)

// RegisterField makes a field available to FieldByName.
func RegisterField(f Field) {
	fieldsMu.Lock()
	defer fieldsMu.Unlock()
	fields[f.Name()] = f
}

// FieldByName looks a field up case-insensitively.
func FieldByName(name string) (Field, error) {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()
	for n, f := range fields {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// FieldNames lists registered field names in sorted order.
func FieldNames() []string {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Transform turns an archive record into an embeddable point. It returns
// false for records without a uri, with an unparseable publication date,
// or without text for the field. It never panics on malformed input.
func Transform(a *ScrapedArticle, f Field) (core.Point, bool) {
	if a == nil || a.URI == "" {
		return core.Point{}, false
	}
	published, err := ParsePubDate(a.PubDate)
	if err != nil {
		return core.Point{}, false
	}
	text, ok := f.Extract(a)
	if !ok {
		return core.Point{}, false
	}

	info := core.CommonInfo{
		URI:            a.URI,
		Year:           published.Year(),
		Month:          int(published.Month()),
		Day:            published.Day(),
		DocumentType:   a.DocumentType,
		NewsDesk:       a.NewsDesk,
		TypeOfMaterial: a.TypeOfMaterial,
	}
	if a.PrintSection != nil {
		info.PrintSection = *a.PrintSection
	}

	return core.Point{
		ID:   StableID(a.URI),
		Text: text,
		Info: info,
	}, true
}

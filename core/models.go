package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// Default archive range, inclusive on both ends.
const (
	StartYear = 1980
	EndYear   = 2010
)

// ID is a compact content-derived identifier used for store key components.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// CommonInfo is the payload attached to every indexed vector.
// It carries enough of the article to filter on and to find it again in
// the relational store.
type CommonInfo struct {
	URI            string `json:"uri"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	Day            int    `json:"day"`
	PrintSection   string `json:"print_section,omitempty"`
	DocumentType   string `json:"document_type"`
	NewsDesk       string `json:"news_desk"`
	TypeOfMaterial string `json:"type_of_material"`
}

// Point is an embeddable record ready for the vector store.
// Vector is empty until the embedding stage fills it in.
type Point struct {
	ID     uuid.UUID
	Text   string
	Vector []float32
	Info   CommonInfo
}

// ScoredInfo is one nearest-neighbour hit from the vector store.
type ScoredInfo struct {
	Info  CommonInfo
	Score float32
}

// Combo is a persisted similarity edge between a contemporary article and
// a past one. Combos are append-only; re-running the updater adds new rows.
type Combo struct {
	ContemporaryURI string    `json:"contemporary_uri"`
	PastURI         string    `json:"past_uri"`
	Score           float32   `json:"score"`
	CreatedAt       time.Time `json:"created_at"`
}

// FrontendImage is the single image shown next to an article.
type FrontendImage struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// FrontendArticle is the display form of an article, assembled from the
// relational store.
type FrontendArticle struct {
	URI            string         `json:"uri"`
	WebURL         string         `json:"web_url"`
	HeadlineMain   string         `json:"headline_main"`
	Snippet        string         `json:"snippet"`
	Year           int            `json:"year"`
	Month          int            `json:"month"`
	Day            int            `json:"day"`
	Image          *FrontendImage `json:"image,omitempty"`
	PrintSection   string         `json:"print_section,omitempty"`
	DocumentType   string         `json:"document_type"`
	NewsDesk       string         `json:"news_desk"`
	TypeOfMaterial string         `json:"type_of_material"`
}

// Date returns the article's publication day at midnight UTC.
func (a *FrontendArticle) Date() time.Time {
	return time.Date(a.Year, time.Month(a.Month), a.Day, 0, 0, 0, 0, time.UTC)
}

// PastMatch pairs a past article with its similarity to a contemporary one.
type PastMatch struct {
	Article *FrontendArticle `json:"article"`
	Score   float32          `json:"score"`
}

// ComboView is a contemporary article together with its most similar past
// articles, best first.
type ComboView struct {
	Contemporary *FrontendArticle `json:"contemporary"`
	Past         []PastMatch      `json:"past"`
}

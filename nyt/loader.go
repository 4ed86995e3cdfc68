package nyt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cyclicism/crunch/core"
)

// PartitionPath is where a month's archive document lives under dir.
func PartitionPath(dir string, key core.PartitionKey) string {
	return filepath.Join(dir, key.String()+".json")
}

// DecodeArchive parses a raw archive document into its records.
func DecodeArchive(raw []byte) ([]ScrapedArticle, error) {
	var doc ArchiveDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.Response.Docs, nil
}

// FileLoader reads archive documents previously written by the scraper.
// A missing file is an error, never an empty partition.
type FileLoader struct {
	Dir string
}

// Describe names the file backing key.
func (l *FileLoader) Describe(key core.PartitionKey) string {
	return PartitionPath(l.Dir, key)
}

// Load reads and decodes the archive document for key.
func (l *FileLoader) Load(ctx context.Context, key core.PartitionKey) ([]ScrapedArticle, error) {
	path := PartitionPath(l.Dir, key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrPartitionNotFound
		}
		return nil, err
	}
	docs, err := DecodeArchive(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return docs, nil
}

// APILoader fetches archive months straight from the API instead of disk.
type APILoader struct {
	Client *Client
}

// Describe names the endpoint backing key.
func (l *APILoader) Describe(key core.PartitionKey) string {
	return ArchivePath(key.Year, key.Month)
}

// Load fetches and decodes the archive month for key.
func (l *APILoader) Load(ctx context.Context, key core.PartitionKey) ([]ScrapedArticle, error) {
	raw, err := l.Client.FetchArchive(ctx, key.Year, key.Month)
	if err != nil {
		return nil, err
	}
	docs, err := DecodeArchive(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.Describe(key), err)
	}
	return docs, nil
}

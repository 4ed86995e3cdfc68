// Package scrape downloads archive months to disk, one file per partition,
// sequentially and under a global retry budget.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
)

const (
	// DefaultBudget is the number of failed attempts tolerated per run.
	DefaultBudget = 100
	// DefaultBackoff is the pause after every download attempt. The archive
	// API rate-limits aggressively.
	DefaultBackoff = 15 * time.Second
)

// ErrBudgetExhausted is returned when the retry budget runs out. Months
// already on disk stay there.
var ErrBudgetExhausted = errors.New("ran out of retries trying to scrape data")

// Fetcher downloads one raw archive month. *nyt.Client implements it.
type Fetcher interface {
	FetchArchive(ctx context.Context, year, month int) ([]byte, error)
}

// Status is the outcome of one attempt at one month.
type Status int

const (
	AlreadyPresent Status = iota
	DownloadFailed
	WriteFailed
	Downloaded
)

func (s Status) String() string {
	switch s {
	case AlreadyPresent:
		return "already-present"
	case DownloadFailed:
		return "download-failed"
	case WriteFailed:
		return "write-failed"
	case Downloaded:
		return "downloaded"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Stats counts the outcomes of a run.
type Stats struct {
	AlreadyPresent   int
	Downloaded       int
	DownloadFailures int
	WriteFailures    int
	BudgetLeft       int
}

// Scraper walks partitions in order and writes each missing month to
// nyt.PartitionPath(Dir, key).
type Scraper struct {
	fetcher Fetcher
	dir     string
	budget  int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithBudget sets the retry budget. Default is DefaultBudget.
func WithBudget(n int) Option {
	return func(s *Scraper) {
		s.budget = n
	}
}

// WithBackoff sets the fixed pause after each attempt. Default is
// DefaultBackoff.
func WithBackoff(d time.Duration) Option {
	return func(s *Scraper) {
		s.backoff = d
	}
}

// WithSleep replaces the pause, e.g. to record it in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scraper) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scraper writing into dir.
func New(fetcher Fetcher, dir string, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher: fetcher,
		dir:     dir,
		budget:  DefaultBudget,
		backoff: DefaultBackoff,
		sleep:   sleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scraper")
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run downloads every missing month of keys. A failed attempt costs one
// unit of budget and is retried after the backoff; a month is only left
// behind once it is on disk. Run returns ErrBudgetExhausted when the
// budget reaches zero before all months are present.
func (s *Scraper) Run(ctx context.Context, keys []core.PartitionKey) (Stats, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	stats := Stats{BudgetLeft: s.budget}
	for i := 0; i < len(keys); {
		if stats.BudgetLeft <= 0 {
			return stats, ErrBudgetExhausted
		}
		key := keys[i]

		status, err := s.HandleMonth(ctx, key)
		switch status {
		case AlreadyPresent:
			stats.AlreadyPresent++
			i++
			s.finishedYear(keys, i)
			continue
		case DownloadFailed, WriteFailed:
			if status == DownloadFailed {
				stats.DownloadFailures++
			} else {
				stats.WriteFailures++
			}
			stats.BudgetLeft--
			s.logger.Warn("month failed", "partition", key.String(), "status", status,
				"budgetLeft", stats.BudgetLeft, "err", err)
		case Downloaded:
			stats.Downloaded++
			i++
			s.logger.Debug("month downloaded", "partition", key.String())
		}

		if err := s.sleep(ctx, s.backoff); err != nil {
			return stats, err
		}
		if status == Downloaded {
			s.finishedYear(keys, i)
		}
	}
	return stats, nil
}

// finishedYear logs when next starts a new year or ends the run.
func (s *Scraper) finishedYear(keys []core.PartitionKey, next int) {
	prev := keys[next-1]
	if next == len(keys) || keys[next].Year != prev.Year {
		s.logger.Info("finished year", "year", prev.Year)
	}
}

// HandleMonth makes one attempt at key without sleeping.
func (s *Scraper) HandleMonth(ctx context.Context, key core.PartitionKey) (Status, error) {
	path := nyt.PartitionPath(s.dir, key)
	if _, err := os.Stat(path); err == nil {
		return AlreadyPresent, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return WriteFailed, err
	}

	body, err := s.fetcher.FetchArchive(ctx, key.Year, key.Month)
	if err != nil {
		return DownloadFailed, err
	}
	if err := writeFileAtomic(path, body); err != nil {
		return WriteFailed, err
	}
	return Downloaded, nil
}

// writeFileAtomic writes to a temporary file and renames it, so a crash
// never leaves a truncated month that the next run would skip.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

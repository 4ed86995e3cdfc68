package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cyclicism/crunch"
	"github.com/cyclicism/crunch/api"
	"github.com/cyclicism/crunch/config"
	"github.com/cyclicism/crunch/ingestion"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/scrape"
	"github.com/cyclicism/crunch/search"
	"github.com/cyclicism/crunch/updater"
	"github.com/urfave/cli/v2"
)

func openDatabase(c *cli.Context) (*crunch.Database, config.Config, error) {
	cfg, err := commandConfig(c)
	if err != nil {
		return nil, cfg, err
	}
	db, err := crunch.Open(c.Context, cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open stores: %w", err)
	}
	return db, cfg, nil
}

func migrateCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(c.Context, c.String("dir")); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Migrations applied")
	return nil
}

func scrapeCommand(c *cli.Context) error {
	cfg, err := commandConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	client, err := nyt.NewClient(cfg.NYT.APIKey, nyt.WithBaseURL(cfg.NYT.BaseURL))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.NYT.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	s := scrape.New(client, cfg.NYT.DataDir,
		scrape.WithBudget(cfg.Scrape.Budget),
		scrape.WithBackoff(cfg.Scrape.Backoff))

	fmt.Fprintf(os.Stderr, "Data directory: %s\n", cfg.NYT.DataDir)
	fmt.Fprintf(os.Stderr, "Years: %d-%d\n", cfg.Pipeline.StartYear, cfg.Pipeline.EndYear)
	fmt.Fprintln(os.Stderr)

	stats, err := s.Run(c.Context, cfg.Partitions())
	fmt.Fprintf(os.Stderr, "Downloaded %d, already present %d, download failures %d, write failures %d, budget left %d\n",
		stats.Downloaded, stats.AlreadyPresent, stats.DownloadFailures, stats.WriteFailures, stats.BudgetLeft)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}
	return nil
}

// pipelineRunOptions maps the shared pipeline flags onto pipeline options.
func pipelineRunOptions(c *cli.Context, db *crunch.Database, job string) []ingestion.Option {
	var opts []ingestion.Option
	if n := c.Int("workers"); n != 0 {
		opts = append(opts, ingestion.WithWorkers(n))
	}
	if c.Bool("progress") {
		opts = append(opts, ingestion.WithProgress(os.Stderr))
	}
	if c.Bool("resume") && job != "" {
		opts = append(opts, ingestion.WithCheckpoints(db.Checkpoints(), job))
	}
	return opts
}

func loadCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	loader, err := db.Loader(c.Bool("from-api"))
	if err != nil {
		return err
	}
	p, err := db.NewLoadPipeline(loader, pipelineRunOptions(c, db, crunch.JobLoad)...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Article store: %s\n", cfg.Stores.Articles)
	fmt.Fprintf(os.Stderr, "Years: %d-%d\n", cfg.Pipeline.StartYear, cfg.Pipeline.EndYear)
	fmt.Fprintln(os.Stderr)

	summary, err := p.Run(c.Context, cfg.Partitions())
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	printSummary(os.Stderr, summary)
	return nil
}

func indexCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	loader, err := db.Loader(c.Bool("from-api"))
	if err != nil {
		return err
	}
	p, err := db.NewIndexPipeline(c.Context, loader, pipelineRunOptions(c, db, crunch.JobIndex+":"+db.Collection())...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Vector store: %s\n", cfg.Stores.Vectors)
	fmt.Fprintf(os.Stderr, "Collection: %s\n", db.Collection())
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(os.Stderr)

	summary, err := p.Run(c.Context, cfg.Partitions())
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printSummary(os.Stderr, summary)
	return nil
}

func repairCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	loader, err := db.Loader(c.Bool("from-api"))
	if err != nil {
		return err
	}
	p, err := db.NewRepairPipeline(c.Context, loader, pipelineRunOptions(c, db, "")...)
	if err != nil {
		return err
	}

	summary, err := p.Run(c.Context, cfg.Partitions())
	if err != nil {
		return fmt.Errorf("payload repair failed: %w", err)
	}
	printSummary(os.Stderr, summary)
	return nil
}

func updateCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	client, err := db.Client()
	if err != nil {
		return err
	}
	u, err := db.NewUpdater(c.Context, client, updater.WithTopK(c.Int("top-k")))
	if err != nil {
		return err
	}

	result, err := u.Run(c.Context)
	fmt.Fprintf(os.Stderr, "Fetched %d, new %d, embedded %d, combos written %d, persist failures %d\n",
		result.Fetched, result.New, result.Embedded, result.CombosWritten, result.PersistFailures)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := db.NewSearcher(c.Context)
	if err != nil {
		return err
	}
	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = &search.WriterMonitor{W: os.Stderr}
	}
	return search.REPL(c.Context, s, os.Stdin, os.Stdout, c.Int("k"), monitor)
}

func serveCommand(c *cli.Context) error {
	db, cfg, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("migrate") {
		err := db.Migrate(c.Context, "")
		if err != nil && !errors.Is(err, crunch.ErrPostgresNotConfigured) {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	h, err := db.NewHandler()
	if err != nil {
		return err
	}
	return api.Serve(c.Context, cfg.API.Addr, h, slog.Default())
}

func printSummary(w io.Writer, s ingestion.Summary) {
	fmt.Fprintf(w, "Partitions: %d (skipped %d, completed %d, failed %d, unclaimed %d)\n",
		s.Partitions, s.Skipped, s.Completed, s.Failed, s.Unclaimed)
	fmt.Fprintf(w, "Records: %d persisted in %d chunks, %d dropped\n", s.Persisted, s.Chunks, s.Dropped)
	if s.Errors > 0 {
		fmt.Fprintf(w, "Errors: %d\n", s.Errors)
		for _, ev := range s.Events {
			fmt.Fprintf(w, "  %s: %v\n", ev.Source, ev.Err)
		}
	}
}

// Copyright 2025 The Crunch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cyclicism/crunch/config"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "crunch",
		Usage: "Index the news archive and pair today's headlines with their past echoes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file (default $CRUNCH_CONFIG)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadConfig(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the PostgreSQL schema",
				Action: migrateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory of numbered .sql files (default: the embedded schema)",
					},
				},
			},
			{
				Name:   "scrape",
				Usage:  "Download archive months that are not on disk yet",
				Action: scrapeCommand,
				Flags: append(rangeFlags(),
					&cli.IntFlag{
						Name:  "budget",
						Usage: "Failed downloads allowed before giving up (default from config)",
					},
					&cli.DurationFlag{
						Name:  "backoff",
						Usage: "Pause after every download attempt (default from config)",
					},
				),
			},
			{
				Name:   "load",
				Usage:  "Load archive months into the article store",
				Action: loadCommand,
				Flags:  pipelineFlags(),
			},
			{
				Name:   "index",
				Usage:  "Embed archive months into the vector store",
				Action: indexCommand,
				Flags: append(pipelineFlags(),
					&cli.StringFlag{
						Name:  "field",
						Usage: "Article field to embed (default from config)",
					},
				),
			},
			{
				Name:   "repair-payloads",
				Usage:  "Rewrite vector payloads from the archive without re-embedding",
				Action: repairCommand,
				Flags:  pipelineFlags(),
			},
			{
				Name:   "update",
				Usage:  "Pair new homepage articles with past ones and refresh the current snapshot",
				Action: updateCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Past matches stored per new article",
						Value: 10,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Interactively search the archive by headline",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Results per query",
						Value:   5,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print search timings and raw vector hits",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the combos HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default from config)",
					},
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "Apply the embedded schema first when PostgreSQL is configured",
					},
				},
			},
		},
	}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "start-year",
			Usage: "First archive year (default from config)",
		},
		&cli.IntFlag{
			Name:  "end-year",
			Usage: "Last archive year, inclusive (default from config)",
		},
	}
}

func pipelineFlags() []cli.Flag {
	return append(rangeFlags(),
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Concurrent workers (default from config)",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Records persisted per chunk (default from config)",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Skip months a previous run completed",
		},
		&cli.BoolFlag{
			Name:  "from-api",
			Usage: "Fetch months from the archive API instead of the data directory",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Print progress to stderr",
			Value: true,
		},
	)
}

// loadConfig reads .env, the config file and the environment, then applies
// the flags that override config values.
func loadConfig(c *cli.Context) error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	c.App.Metadata = map[string]any{configKey: cfg}
	return nil
}

// commandConfig returns the loaded config with the command's flags applied.
func commandConfig(c *cli.Context) (config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(config.Config)
	if !ok {
		return cfg, fmt.Errorf("config not loaded")
	}
	if v := c.Int("start-year"); v != 0 {
		cfg.Pipeline.StartYear = v
	}
	if v := c.Int("end-year"); v != 0 {
		cfg.Pipeline.EndYear = v
	}
	if v := c.Int("chunk-size"); v != 0 {
		cfg.Pipeline.ChunkSize = v
	}
	if v := c.String("field"); v != "" {
		cfg.Embedding.Field = v
	}
	if v := c.Int("budget"); v != 0 {
		cfg.Scrape.Budget = v
	}
	if c.IsSet("backoff") {
		cfg.Scrape.Backoff = c.Duration("backoff")
	}
	if v := c.String("addr"); v != "" {
		cfg.API.Addr = v
	}
	return cfg, cfg.Validate()
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

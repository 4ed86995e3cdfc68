package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/cyclicism/crunch/storage"
	"github.com/jackc/pgx/v5"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate applies the numbered .sql files in dir.
func Migrate(ctx context.Context, db Beginner, dir string) error {
	return MigrateFS(ctx, db, os.DirFS(dir))
}

// MigrateFS applies the numbered .sql files at the root of fsys in numeric
// order. Each file runs in its own transaction; statements are separated
// by semicolons and blank statements are skipped. Files are expected to be
// idempotent, since every call replays all of them.
func MigrateFS(ctx context.Context, db Beginner, fsys fs.FS) error {
	logger := slog.Default().With("component", "migrate")

	files, err := migrationFiles(fsys)
	if err != nil {
		return err
	}
	for _, name := range files {
		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", storage.ErrMigrationFailed, name, err)
		}
		statements := splitStatements(string(contents))
		err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			for _, stmt := range statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", storage.ErrMigrationFailed, name, err)
		}
		logger.Info("applied migration", "file", name, "statements", len(statements))
	}
	return nil
}

// migrationFiles lists the .sql files of fsys sorted by numeric stem.
// Other files are ignored; a .sql file without a numeric stem is an error.
func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrMigrationFailed, err)
	}

	type numbered struct {
		name string
		n    int
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".sql")
		n, err := strconv.Atoi(stem)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not numbered", storage.ErrMigrationFailed, e.Name())
		}
		files = append(files, numbered{name: e.Name(), n: n})
	}
	slices.SortFunc(files, func(a, b numbered) int { return a.n - b.n })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// splitStatements splits a script on semicolons and drops blank parts.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ComboRepository implements storage.ComboRepository on PostgreSQL.
type ComboRepository struct {
	pool *pgxpool.Pool
}

var _ storage.ComboRepository = (*ComboRepository)(nil)

// NewComboRepository creates a repository on pool. The pool is owned by
// the caller.
func NewComboRepository(pool *pgxpool.Pool) *ComboRepository {
	return &ComboRepository{pool: pool}
}

// Close is a no-op; the pool is closed by its owner.
func (r *ComboRepository) Close() error {
	return nil
}

// HasCombos reports whether any edge starts at contemporaryURI.
func (r *ComboRepository) HasCombos(ctx context.Context, contemporaryURI string) (bool, error) {
	query, args, err := psql.Select("1").
		From("combos").
		Where(sq.Eq{"contemporary_uri": contemporaryURI}).
		Limit(1).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.pool.QueryRow(ctx, query, args...).Scan(&exists)
	return exists, err
}

// AddCombo inserts an edge. Identical edges are kept as separate rows.
func (r *ComboRepository) AddCombo(ctx context.Context, combo core.Combo) error {
	if err := core.ValidateCombo(&combo); err != nil {
		return err
	}
	if combo.CreatedAt.IsZero() {
		combo.CreatedAt = time.Now().UTC()
	}
	return exec(ctx, r.pool, insertCombo(combo))
}

func insertCombo(c core.Combo) sq.InsertBuilder {
	return psql.Insert("combos").
		Columns("contemporary_uri", "past_uri", "score", "created_at").
		Values(c.ContemporaryURI, c.PastURI, c.Score, c.CreatedAt)
}

// CombosFor lists the edges of contemporaryURI, highest score first.
func (r *ComboRepository) CombosFor(ctx context.Context, contemporaryURI string) ([]core.Combo, error) {
	query, args, err := psql.Select("contemporary_uri", "past_uri", "score", "created_at").
		From("combos").
		Where(sq.Eq{"contemporary_uri": contemporaryURI}).
		OrderBy("score DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var combos []core.Combo
	for rows.Next() {
		var c core.Combo
		if err := rows.Scan(&c.ContemporaryURI, &c.PastURI, &c.Score, &c.CreatedAt); err != nil {
			return nil, err
		}
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// ReplaceCurrent truncates the snapshot and inserts uris ranked by
// position, in one transaction.
func (r *ComboRepository) ReplaceCurrent(ctx context.Context, uris []string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE current"); err != nil {
			return err
		}
		if len(uris) == 0 {
			return nil
		}
		return exec(ctx, tx, insertCurrent(uris))
	})
}

func insertCurrent(uris []string) sq.InsertBuilder {
	b := psql.Insert("current").Columns("uri", "rank")
	for rank, uri := range uris {
		b = b.Values(uri, rank)
	}
	return b
}

// Current returns the snapshot ordered by rank.
func (r *ComboRepository) Current(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("uri").From("current").OrderBy("rank").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

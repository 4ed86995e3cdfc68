// Package neo4j implements storage.ComboRepository as a graph:
// (:Contemporary {uri})-[:ECHOES {score, created_at}]->(:Past {uri}), with
// the current homepage order held in (:Current {uri, rank}) nodes.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config locates the Neo4j server.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// runner executes one query in its own transaction.
type runner func(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)

// ComboRepository stores combos in Neo4j.
type ComboRepository struct {
	driver neo4j.DriverWithContext
	run    runner
	logger *slog.Logger
}

var _ storage.ComboRepository = (*ComboRepository)(nil)

// NewComboRepository connects to Neo4j and verifies connectivity.
func NewComboRepository(ctx context.Context, cfg Config) (*ComboRepository, error) {
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity to neo4j: %w", err)
	}

	var opts []neo4j.ExecuteQueryConfigurationOption
	if cfg.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	run := func(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
		return neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer, opts...)
	}
	return newComboRepository(driver, run), nil
}

func newComboRepository(driver neo4j.DriverWithContext, run runner) *ComboRepository {
	return &ComboRepository{
		driver: driver,
		run:    run,
		logger: slog.Default().With("component", "neo4j"),
	}
}

// Close closes the driver.
func (r *ComboRepository) Close() error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Close(context.Background())
}

const (
	constraintContemporary = `CREATE CONSTRAINT contemporary_uri IF NOT EXISTS FOR (c:Contemporary) REQUIRE c.uri IS UNIQUE`
	constraintPast         = `CREATE CONSTRAINT past_uri IF NOT EXISTS FOR (p:Past) REQUIRE p.uri IS UNIQUE`

	hasCombosQuery = `MATCH (:Contemporary {uri: $uri})-[e:ECHOES]->(:Past)
RETURN count(e) > 0 AS has`

	addComboQuery = `MERGE (c:Contemporary {uri: $contemporary})
MERGE (p:Past {uri: $past})
CREATE (c)-[:ECHOES {score: $score, created_at: $created_at}]->(p)`

	combosForQuery = `MATCH (c:Contemporary {uri: $uri})-[e:ECHOES]->(p:Past)
RETURN p.uri AS past, e.score AS score, e.created_at AS created_at
ORDER BY e.score DESC`

	// The aggregate keeps one row alive after the delete, so the unwind
	// runs even when there was no previous snapshot.
	replaceCurrentQuery = `OPTIONAL MATCH (old:Current)
DETACH DELETE old
WITH count(*) AS cleared
UNWIND range(0, size($uris) - 1) AS rank
CREATE (:Current {uri: $uris[rank], rank: rank})`

	currentQuery = `MATCH (n:Current)
RETURN n.uri AS uri
ORDER BY n.rank`
)

// EnsureSchema creates the uniqueness constraints the MERGEs rely on.
func (r *ComboRepository) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{constraintContemporary, constraintPast} {
		if _, err := r.run(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// HasCombos reports whether any ECHOES edge starts at contemporaryURI.
func (r *ComboRepository) HasCombos(ctx context.Context, contemporaryURI string) (bool, error) {
	result, err := r.run(ctx, hasCombosQuery, map[string]any{"uri": contemporaryURI})
	if err != nil {
		return false, err
	}
	if len(result.Records) == 0 {
		return false, nil
	}
	has, _, err := neo4j.GetRecordValue[bool](result.Records[0], "has")
	return has, err
}

// AddCombo creates a new edge. Repeated calls create parallel edges.
func (r *ComboRepository) AddCombo(ctx context.Context, combo core.Combo) error {
	if err := core.ValidateCombo(&combo); err != nil {
		return err
	}
	if combo.CreatedAt.IsZero() {
		combo.CreatedAt = time.Now().UTC()
	}
	_, err := r.run(ctx, addComboQuery, map[string]any{
		"contemporary": combo.ContemporaryURI,
		"past":         combo.PastURI,
		"score":        float64(combo.Score),
		"created_at":   combo.CreatedAt,
	})
	return err
}

// CombosFor lists the edges of contemporaryURI, highest score first.
func (r *ComboRepository) CombosFor(ctx context.Context, contemporaryURI string) ([]core.Combo, error) {
	result, err := r.run(ctx, combosForQuery, map[string]any{"uri": contemporaryURI})
	if err != nil {
		return nil, err
	}
	combos := make([]core.Combo, 0, len(result.Records))
	for _, record := range result.Records {
		past, _, err := neo4j.GetRecordValue[string](record, "past")
		if err != nil {
			return nil, err
		}
		score, _, err := neo4j.GetRecordValue[float64](record, "score")
		if err != nil {
			return nil, err
		}
		created, _, _ := neo4j.GetRecordValue[time.Time](record, "created_at")
		combos = append(combos, core.Combo{
			ContemporaryURI: contemporaryURI,
			PastURI:         past,
			Score:           float32(score),
			CreatedAt:       created,
		})
	}
	return combos, nil
}

// ReplaceCurrent swaps the snapshot in a single query, hence a single
// transaction.
func (r *ComboRepository) ReplaceCurrent(ctx context.Context, uris []string) error {
	if uris == nil {
		uris = []string{}
	}
	_, err := r.run(ctx, replaceCurrentQuery, map[string]any{"uris": uris})
	if err != nil {
		return err
	}
	r.logger.Debug("replaced current snapshot", "count", len(uris))
	return nil
}

// Current returns the snapshot ordered by rank.
func (r *ComboRepository) Current(ctx context.Context) ([]string, error) {
	result, err := r.run(ctx, currentQuery, nil)
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		uri, _, err := neo4j.GetRecordValue[string](record, "uri")
		if err != nil {
			return nil, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

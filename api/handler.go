// Package api serves contemporary articles and their past matches over
// HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFanOut bounds concurrent per-article lookups in one request.
	DefaultFanOut = 8
	// DefaultPastLimit caps the past matches shown per contemporary article.
	DefaultPastLimit = 10
)

var (
	ErrArticlesRequired = errors.New("article repository required")
	ErrCombosRequired   = errors.New("combo repository required")
	ErrInvalidDate      = errors.New("year, month and day must form a valid date")
)

// CombosResponse is the body of every successful response.
type CombosResponse struct {
	Combos []core.ComboView `json:"combos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves GET /combos_on_date and GET /current.
type Handler struct {
	articles  storage.ArticleRepository
	combos    storage.ComboRepository
	fanOut    int
	pastLimit int
	logger    *slog.Logger
	mux       *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler) error

// WithFanOut bounds how many contemporary articles are resolved at once.
func WithFanOut(n int) Option {
	return func(h *Handler) error {
		if n < 1 {
			return fmt.Errorf("fan-out must be positive, got %d", n)
		}
		h.fanOut = n
		return nil
	}
}

// WithPastLimit caps the past matches per contemporary article.
func WithPastLimit(n int) Option {
	return func(h *Handler) error {
		if n < 1 {
			return fmt.Errorf("past limit must be positive, got %d", n)
		}
		h.pastLimit = n
		return nil
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) error {
		h.logger = logger
		return nil
	}
}

// NewHandler builds a Handler reading from articles and combos.
func NewHandler(articles storage.ArticleRepository, combos storage.ComboRepository, opts ...Option) (*Handler, error) {
	if articles == nil {
		return nil, ErrArticlesRequired
	}
	if combos == nil {
		return nil, ErrCombosRequired
	}

	h := &Handler{
		articles:  articles,
		combos:    combos,
		fanOut:    DefaultFanOut,
		pastLimit: DefaultPastLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	h.logger = h.logger.With("component", "api")

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET /combos_on_date", h.handleCombosOnDate)
	h.mux.HandleFunc("GET /current", h.handleCurrent)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleCombosOnDate(w http.ResponseWriter, r *http.Request) {
	year, month, day, err := parseDate(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	views, err := h.CombosOnDate(r.Context(), year, month, day)
	if err != nil {
		h.logger.Error("combos on date failed", "year", year, "month", month, "day", day, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	h.writeJSON(w, http.StatusOK, CombosResponse{Combos: views})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	views, err := h.Current(r.Context())
	if err != nil {
		h.logger.Error("current failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	h.writeJSON(w, http.StatusOK, CombosResponse{Combos: views})
}

// CombosOnDate returns every contemporary article published on the given
// day with its past matches.
func (h *Handler) CombosOnDate(ctx context.Context, year, month, day int) ([]core.ComboView, error) {
	articles, err := h.articles.ContemporaryOnDate(ctx, year, month, day)
	if err != nil {
		return nil, fmt.Errorf("list contemporary articles: %w", err)
	}
	return h.resolve(ctx, articles)
}

// Current returns the current homepage snapshot in rank order with each
// article's past matches. Snapshot entries whose article is missing are
// skipped.
func (h *Handler) Current(ctx context.Context) ([]core.ComboView, error) {
	uris, err := h.combos.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current snapshot: %w", err)
	}

	articles := make([]*core.FrontendArticle, 0, len(uris))
	for _, uri := range uris {
		a, err := h.articles.GetArticle(ctx, uri)
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("current article missing", "uri", uri)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get article %s: %w", uri, err)
		}
		articles = append(articles, a)
	}
	return h.resolve(ctx, articles)
}

// resolve attaches past matches to each article concurrently, keeping the
// input order.
func (h *Handler) resolve(ctx context.Context, articles []*core.FrontendArticle) ([]core.ComboView, error) {
	views := make([]core.ComboView, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.fanOut)
	for i, a := range articles {
		g.Go(func() error {
			past, err := h.pastMatches(gctx, a.URI)
			if err != nil {
				return err
			}
			views[i] = core.ComboView{Contemporary: a, Past: past}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// pastMatches loads the past side of every edge of uri, best first. Edges
// are append-only, so repeated past URIs keep only their best score.
func (h *Handler) pastMatches(ctx context.Context, uri string) ([]core.PastMatch, error) {
	combos, err := h.combos.CombosFor(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("combos for %s: %w", uri, err)
	}

	seen := make(map[string]bool, len(combos))
	past := make([]core.PastMatch, 0, min(len(combos), h.pastLimit))
	for _, c := range combos {
		if len(past) == h.pastLimit {
			break
		}
		if seen[c.PastURI] {
			continue
		}
		seen[c.PastURI] = true

		a, err := h.articles.GetArticle(ctx, c.PastURI)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get past article %s: %w", c.PastURI, err)
		}
		past = append(past, core.PastMatch{Article: a, Score: c.Score})
	}
	return past, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", "err", err)
	}
}

func parseDate(r *http.Request) (year, month, day int, err error) {
	q := r.URL.Query()
	parse := func(name string) (int, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, fmt.Errorf("missing query parameter %q", name)
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("query parameter %q is not an integer", name)
		}
		return v, nil
	}

	if year, err = parse("year"); err != nil {
		return
	}
	if month, err = parse("month"); err != nil {
		return
	}
	if day, err = parse("day"); err != nil {
		return
	}
	if !core.IsValidDate(year, month, day) {
		err = ErrInvalidDate
	}
	return
}

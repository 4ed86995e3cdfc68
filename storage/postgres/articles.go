package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArticleRepository implements storage.ArticleRepository on PostgreSQL.
type ArticleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// NewArticleRepository creates a repository on pool. The pool is owned by
// the caller.
func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{
		pool:   pool,
		logger: slog.Default().With("component", "postgres"),
	}
}

// Close is a no-op; the pool is closed by its owner.
func (r *ArticleRepository) Close() error {
	return nil
}

// UpsertArchiveArticle writes the article, its headline and its first
// image in one transaction.
func (r *ArticleRepository) UpsertArchiveArticle(ctx context.Context, a *nyt.ScrapedArticle) error {
	if a == nil {
		return core.ErrEmptyURI
	}
	return r.UpsertArchiveArticles(ctx, []nyt.ScrapedArticle{*a})
}

// UpsertArchiveArticles writes a batch of articles in one transaction.
func (r *ArticleRepository) UpsertArchiveArticles(ctx context.Context, articles []nyt.ScrapedArticle) error {
	if len(articles) == 0 {
		return nil
	}
	for i := range articles {
		if articles[i].URI == "" {
			return core.ErrEmptyURI
		}
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range articles {
			a := &articles[i]
			for _, b := range archiveStatements(a) {
				if err := exec(ctx, tx, b); err != nil {
					return fmt.Errorf("upsert %s: %w", a.URI, err)
				}
			}
		}
		return nil
	})
}

func archiveStatements(a *nyt.ScrapedArticle) []sq.Sqlizer {
	stmts := []sq.Sqlizer{
		psql.Insert("scraped_article").
			Columns("uri", "web_url", "snippet", "print_page", "print_section", "source",
				"pub_date", "document_type", "news_desk", "section_name", "type_of_material").
			Values(a.URI, a.WebURL, a.Snippet, a.PrintPage, a.PrintSection, a.Source,
				a.PubDate, a.DocumentType, a.NewsDesk, a.SectionName, a.TypeOfMaterial).
			Suffix(onConflictUpdate("web_url", "snippet", "print_page", "print_section", "source",
				"pub_date", "document_type", "news_desk", "section_name", "type_of_material")),
		psql.Insert("scraped_headline").
			Columns("uri", "main", "kicker", "content_kicker", "print_headline", "name", "seo", "sub").
			Values(a.URI, a.Headline.Main, a.Headline.Kicker, a.Headline.ContentKicker,
				a.Headline.PrintHeadline, a.Headline.Name, a.Headline.SEO, a.Headline.Sub).
			Suffix(onConflictUpdate("main", "kicker", "content_kicker", "print_headline", "name", "seo", "sub")),
	}
	if m, ok := a.FirstMedia(); ok {
		stmts = append(stmts, psql.Insert("scraped_multimedia").
			Columns("uri", "rank", "subtype", "caption", "credit", "type_", "url", "height", "width", "crop_name").
			Values(a.URI, m.Rank, m.Subtype, m.Caption, m.Credit, m.Type, m.URL, m.Height, m.Width, m.CropName).
			Suffix(onConflictUpdate("rank", "subtype", "caption", "credit", "type_", "url", "height", "width", "crop_name")))
	}
	return stmts
}

// UpsertContemporaryArticle writes a homepage record and its first image
// in one transaction. The date columns come from published_date.
func (r *ArticleRepository) UpsertContemporaryArticle(ctx context.Context, a *nyt.ContemporaryArticle) error {
	if a == nil || a.URI == "" {
		return core.ErrEmptyURI
	}
	stmts, err := contemporaryStatements(a)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, b := range stmts {
			if err := exec(ctx, tx, b); err != nil {
				return fmt.Errorf("upsert %s: %w", a.URI, err)
			}
		}
		return nil
	})
}

func contemporaryStatements(a *nyt.ContemporaryArticle) ([]sq.Sqlizer, error) {
	yy, mm, dd, err := a.DateParts()
	if err != nil {
		return nil, err
	}
	stmts := []sq.Sqlizer{
		psql.Insert("contemporary_article").
			Columns("uri", "url", "yy", "mm", "dd", "title", "abstract", "section",
				"subsection", "item_type", "kicker", "material_type_facet").
			Values(a.URI, a.URL, yy, mm, dd, a.Title, a.Abstract, a.Section,
				a.Subsection, a.ItemType, a.Kicker, a.MaterialTypeFacet).
			Suffix(onConflictUpdate("url", "yy", "mm", "dd", "title", "abstract", "section",
				"subsection", "item_type", "kicker", "material_type_facet")),
	}
	if m, ok := a.FirstMedia(); ok {
		stmts = append(stmts, psql.Insert("contemporary_multimedia").
			Columns("uri", "url", "rank", "format", "type_", "subtype", "caption").
			Values(a.URI, m.URL, 0, m.Format, m.Type, m.Subtype, m.Caption).
			Suffix(onConflictUpdate("url", "rank", "format", "type_", "subtype", "caption")))
	}
	return stmts, nil
}

// GetArticle looks in the archive tables first, then in the contemporary
// ones.
func (r *ArticleRepository) GetArticle(ctx context.Context, uri string) (*core.FrontendArticle, error) {
	article, err := r.getArchive(ctx, uri)
	if !errors.Is(err, storage.ErrNotFound) {
		return article, err
	}
	r.logger.Debug("not an archive article, trying contemporary", "uri", uri)

	query, args, err := contemporarySelect().Where(sq.Eq{"c.uri": uri}).ToSql()
	if err != nil {
		return nil, err
	}
	article, err = scanContemporary(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: article %s", storage.ErrNotFound, uri)
	}
	return article, err
}

func (r *ArticleRepository) getArchive(ctx context.Context, uri string) (*core.FrontendArticle, error) {
	query, args, err := psql.
		Select("a.web_url", "a.snippet", "a.print_section", "a.pub_date", "a.document_type",
			"a.news_desk", "a.type_of_material", "h.main", "m.url", "m.caption").
		From("scraped_article a").
		Join("scraped_headline h ON h.uri = a.uri").
		LeftJoin("scraped_multimedia m ON m.uri = a.uri").
		Where(sq.Eq{"a.uri": uri}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		a                 nyt.ScrapedArticle
		imageURL, caption *string
	)
	err = r.pool.QueryRow(ctx, query, args...).Scan(&a.WebURL, &a.Snippet, &a.PrintSection, &a.PubDate,
		&a.DocumentType, &a.NewsDesk, &a.TypeOfMaterial, &a.Headline.Main, &imageURL, &caption)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: article %s", storage.ErrNotFound, uri)
	}
	if err != nil {
		return nil, err
	}
	a.URI = uri
	if imageURL != nil {
		a.Multimedia = []nyt.ScrapedMultimedia{{URL: *imageURL, Caption: caption}}
	}

	front := a.Frontend()
	front.Snippet = nyt.CleanSnippet(front.Snippet)
	return &front, nil
}

// ContemporaryOnDate lists the contemporary articles of one day in URI order.
func (r *ArticleRepository) ContemporaryOnDate(ctx context.Context, year, month, day int) ([]*core.FrontendArticle, error) {
	if !core.IsValidDate(year, month, day) {
		return nil, fmt.Errorf("%w: %04d-%02d-%02d", core.ErrInvalidDate, year, month, day)
	}
	query, args, err := contemporarySelect().
		Where(sq.Eq{"c.yy": year, "c.mm": month, "c.dd": day}).
		OrderBy("c.uri").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.FrontendArticle
	for rows.Next() {
		article, err := scanContemporary(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, article)
	}
	return results, rows.Err()
}

func contemporarySelect() sq.SelectBuilder {
	return psql.
		Select("c.uri", "c.url", "c.yy", "c.mm", "c.dd", "c.title", "c.abstract", "c.section",
			"c.item_type", "c.material_type_facet", "m.url", "m.caption").
		From("contemporary_article c").
		LeftJoin("contemporary_multimedia m ON m.uri = c.uri")
}

func scanContemporary(row pgx.Row) (*core.FrontendArticle, error) {
	var (
		a                 core.FrontendArticle
		imageURL, caption *string
	)
	err := row.Scan(&a.URI, &a.WebURL, &a.Year, &a.Month, &a.Day, &a.HeadlineMain, &a.Snippet,
		&a.NewsDesk, &a.DocumentType, &a.TypeOfMaterial, &imageURL, &caption)
	if err != nil {
		return nil, err
	}
	if imageURL != nil {
		a.Image = &core.FrontendImage{URL: *imageURL}
		if caption != nil {
			a.Image.Caption = *caption
		}
	}
	a.Snippet = nyt.CleanSnippet(a.Snippet)
	return &a, nil
}

// onConflictUpdate renders an upsert clause that overwrites cols from the
// proposed row.
func onConflictUpdate(cols ...string) string {
	clause := "ON CONFLICT (uri) DO UPDATE SET "
	for i, c := range cols {
		if i > 0 {
			clause += ", "
		}
		clause += c + " = EXCLUDED." + c
	}
	return clause
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
)

const uniqueViolation = "23505"

// PostgresStore keeps articles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings and initializes the schema.
func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL store connected")
	return store, nil
}

// initSchema creates the necessary tables if they don't exist
func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id VARCHAR(16) PRIMARY KEY,
		content_hash VARCHAR(32) NOT NULL,
		title TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		author TEXT NOT NULL DEFAULT 'Unknown',
		source_name TEXT NOT NULL,
		source_domain TEXT NOT NULL,
		source_feed_url TEXT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		excerpt TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		featured_image JSONB,
		images JSONB NOT NULL DEFAULT '[]',
		categories TEXT[] NOT NULL DEFAULT '{}',
		tags TEXT[] NOT NULL DEFAULT '{}',
		comment_count INTEGER NOT NULL DEFAULT 0,
		relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_duplicate BOOLEAN NOT NULL DEFAULT FALSE,
		duplicate_reason TEXT NOT NULL DEFAULT '',
		similarity DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash);
	CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_source_domain ON articles(source_domain);
	`

	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

const articleColumns = `id, content_hash, title, url, author, source_name, source_domain, source_feed_url,
	published_at, excerpt, content, featured_image, images, categories, tags, comment_count,
	relevance_score, is_duplicate, duplicate_reason, similarity, created_at, updated_at`

func (ps *PostgresStore) FindByURLOrHash(ctx context.Context, url, hash string) (news.Article, bool, error) {
	query := `SELECT ` + articleColumns + ` FROM articles
		WHERE url = $1 OR content_hash = $2
		ORDER BY (url = $1) DESC, created_at ASC
		LIMIT 1`

	rows, err := ps.db.QueryContext(ctx, query, url, hash)
	if err != nil {
		return news.Article{}, false, fmt.Errorf("find article: %w", err)
	}
	articles, err := scanArticles(rows)
	if err != nil {
		return news.Article{}, false, err
	}
	if len(articles) == 0 {
		return news.Article{}, false, nil
	}
	return articles[0], true, nil
}

func (ps *PostgresStore) Insert(ctx context.Context, a news.Article) error {
	args, err := articleArgs(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return classify("insert article", err)
	}
	return nil
}

func (ps *PostgresStore) Update(ctx context.Context, a news.Article) error {
	featured, images, err := encodeImages(a)
	if err != nil {
		return err
	}
	query := `UPDATE articles SET
		content_hash = $2, title = $3, author = $4, published_at = $5, excerpt = $6,
		content = $7, featured_image = $8, images = $9, categories = $10, tags = $11,
		comment_count = $12, relevance_score = $13, is_duplicate = $14,
		duplicate_reason = $15, similarity = $16, updated_at = $17
		WHERE id = $1`

	res, err := ps.db.ExecContext(ctx, query,
		a.ID, a.ContentHash, a.Title, a.Author, a.PublishedAt, a.Excerpt,
		a.Content, featured, images, pq.Array(nonNil(a.Categories)), pq.Array(nonNil(a.Tags)),
		a.CommentCount, a.RelevanceScore, a.IsDuplicate,
		a.DuplicateReason, a.Similarity, a.UpdatedAt,
	)
	if err != nil {
		return classify("update article", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	return nil
}

func (ps *PostgresStore) Query(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalized()
	where, args := buildWhere(f)

	var total int64
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count articles: %w", err)
	}

	n := len(args)
	query := `SELECT ` + articleColumns + ` FROM articles` + where +
		fmt.Sprintf(` ORDER BY published_at DESC, id ASC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := ps.db.QueryContext(ctx, query, append(args, f.Limit, f.offset())...)
	if err != nil {
		return Page{}, fmt.Errorf("query articles: %w", err)
	}
	articles, err := scanArticles(rows)
	if err != nil {
		return Page{}, err
	}

	return Page{Articles: articles, Pagination: newPagination(total, f)}, nil
}

// buildWhere renders f as a WHERE clause with positional arguments.
func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeDuplicates {
		conds = append(conds, "NOT is_duplicate")
	}
	if f.Source != "" {
		conds = append(conds, "source_domain = "+arg(f.Source))
	}
	if f.Category != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM unnest(categories) c WHERE c ILIKE "+arg(likePattern(f.Category))+")")
	}
	if f.Author != "" {
		conds = append(conds, "author ILIKE "+arg(likePattern(f.Author)))
	}
	if !f.StartDate.IsZero() {
		conds = append(conds, "published_at >= "+arg(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, "published_at <= "+arg(f.EndDate))
	}
	if f.Search != "" {
		p := arg(likePattern(f.Search))
		conds = append(conds, fmt.Sprintf("(title ILIKE %[1]s OR excerpt ILIKE %[1]s OR EXISTS (SELECT 1 FROM unnest(categories) c WHERE c ILIKE %[1]s))", p))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// likePattern wraps s for a substring ILIKE match, escaping wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (ps *PostgresStore) SourcesStats(ctx context.Context) ([]SourceStat, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT source_domain, MAX(source_name), COUNT(*), MAX(published_at)
		FROM articles
		WHERE NOT is_duplicate
		GROUP BY source_domain
		ORDER BY COUNT(*) DESC, source_domain ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sources stats: %w", err)
	}
	defer rows.Close()

	var out []SourceStat
	for rows.Next() {
		var s SourceStat
		if err := rows.Scan(&s.Domain, &s.Name, &s.Count, &s.LatestArticle); err != nil {
			return nil, fmt.Errorf("scan source stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) CategoriesStats(ctx context.Context, limit int) ([]CategoryStat, error) {
	if limit <= 0 {
		limit = DefaultTopCategory
	}
	rows, err := ps.db.QueryContext(ctx, `
		SELECT c, COUNT(*)
		FROM articles, unnest(categories) c
		WHERE NOT is_duplicate
		GROUP BY c
		ORDER BY COUNT(*) DESC, c ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("categories stats: %w", err)
	}
	defer rows.Close()

	var out []CategoryStat
	for rows.Next() {
		var s CategoryStat
		if err := rows.Scan(&s.Category, &s.Count); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes articles published before cutoff.
func (ps *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := ps.db.ExecContext(ctx, `DELETE FROM articles WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

func (ps *PostgresStore) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return total, nil
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func articleArgs(a news.Article) ([]any, error) {
	featured, images, err := encodeImages(a)
	if err != nil {
		return nil, err
	}

	return []any{
		a.ID, a.ContentHash, a.Title, a.URL, a.Author,
		a.Source.Name, a.Source.Domain, a.Source.FeedURL,
		a.PublishedAt, a.Excerpt, a.Content, featured, images,
		pq.Array(nonNil(a.Categories)), pq.Array(nonNil(a.Tags)), a.CommentCount,
		a.RelevanceScore, a.IsDuplicate, a.DuplicateReason, a.Similarity,
		a.CreatedAt, a.UpdatedAt,
	}, nil
}

// encodeImages renders the image fields as JSON text. A missing featured
// image is stored as NULL.
func encodeImages(a news.Article) (featured any, images string, err error) {
	if a.FeaturedImage != nil {
		b, err := json.Marshal(a.FeaturedImage)
		if err != nil {
			return nil, "", fmt.Errorf("encode featured image: %w", err)
		}
		featured = string(b)
	}
	list := a.Images
	if list == nil {
		list = []news.Image{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, "", fmt.Errorf("encode images: %w", err)
	}
	return featured, string(b), nil
}

func scanArticles(rows *sql.Rows) ([]news.Article, error) {
	defer rows.Close()

	var items []news.Article
	for rows.Next() {
		var (
			a               news.Article
			featured, image []byte
		)
		err := rows.Scan(
			&a.ID, &a.ContentHash, &a.Title, &a.URL, &a.Author,
			&a.Source.Name, &a.Source.Domain, &a.Source.FeedURL,
			&a.PublishedAt, &a.Excerpt, &a.Content, &featured, &image,
			pq.Array(&a.Categories), pq.Array(&a.Tags), &a.CommentCount,
			&a.RelevanceScore, &a.IsDuplicate, &a.DuplicateReason, &a.Similarity,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			logger.Warn("Error scanning article row", "error", err)
			continue
		}
		if len(featured) > 0 {
			var img news.Image
			if err := json.Unmarshal(featured, &img); err == nil {
				a.FeaturedImage = &img
			}
		}
		if err := json.Unmarshal(image, &a.Images); err != nil || a.Images == nil {
			a.Images = []news.Image{}
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// classify maps unique violations to ErrConflict.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %s", ErrConflict, op, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

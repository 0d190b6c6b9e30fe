package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

//go:embed schema.sql
var schema string

// Open connects to Postgres with the configured pool sizing: a few permanent
// connections plus headroom for bursts.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// PostgresRepository persists posts, classifications and scan history.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.ClassificationStore = (*PostgresRepository)(nil)
	_ ports.BookmarkStore       = (*PostgresRepository)(nil)
	_ ports.StatsReader         = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB and bootstraps the schema.
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// SavePosts inserts new posts; rows that already exist are left untouched,
// keeping the fetched snapshot immutable.
func (r *PostgresRepository) SavePosts(ctx context.Context, posts []domain.Post) error {
	for _, post := range posts {
		truncated := len(post.Selftext) > domain.MaxSelftextChars
		query, args, err := r.sb.
			Insert("posts").
			Columns("id", "source", "subreddit", "title", "author", "score",
				"num_comments", "created_at", "url", "selftext", "selftext_truncated").
			Values(post.ID, post.Source, nullable(post.Subreddit), post.Title,
				nullable(post.Author), post.Score, post.NumComments, post.CreatedAt,
				nullable(post.URL), post.TruncatedSelftext(), truncated).
			Suffix("ON CONFLICT (id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert post: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert post %s: %w", post.ID, err)
		}
	}
	return nil
}

// CachedClassifications loads existing rows for the given post id set.
func (r *PostgresRepository) CachedClassifications(ctx context.Context, postIDs []string, source, project string) ([]domain.Classification, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	query, args, err := r.sb.
		Select(classificationColumns...).
		From("classifications").
		Where(sq.Eq{"post_id": postIDs, "source": source, "project": project}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cached lookup: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cached classifications: %w", err)
	}
	defer rows.Close()

	var results []domain.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// SaveClassifications upserts on the (post_id, source, project) unique key.
// Conflicts resolve in the store, not in the application: a reclassification
// with a newer model version simply replaces the row in place.
func (r *PostgresRepository) SaveClassifications(ctx context.Context, classifications []domain.Classification) error {
	for _, c := range classifications {
		tierTags, err := marshalTierTags(c.TierTags)
		if err != nil {
			return fmt.Errorf("encode tier tags for %s: %w", c.PostID, err)
		}

		query, args, err := r.sb.
			Insert("classifications").
			Columns("post_id", "source", "project", "category", "confidence",
				"red_flags", "reasoning", "topic_tags", "format_tag",
				"tier_tags", "tier_clusters", "tier_scoring",
				"model_version", "classified_at").
			Values(c.PostID, c.Source, c.Project, string(c.Category), c.Confidence,
				pq.Array(emptyIfNil(c.RedFlags)), c.Reasoning, pq.Array(emptyIfNil(c.TopicTags)),
				nullable(c.FormatTag), tierTags, pq.Array(emptyIfNil(c.TierClusters)),
				c.TierScoring, c.ModelVersion, c.ClassifiedAt).
			Suffix(`ON CONFLICT (post_id, source, project) DO UPDATE SET
				category = EXCLUDED.category,
				confidence = EXCLUDED.confidence,
				red_flags = EXCLUDED.red_flags,
				reasoning = EXCLUDED.reasoning,
				topic_tags = EXCLUDED.topic_tags,
				format_tag = EXCLUDED.format_tag,
				tier_tags = EXCLUDED.tier_tags,
				tier_clusters = EXCLUDED.tier_clusters,
				tier_scoring = EXCLUDED.tier_scoring,
				model_version = EXCLUDED.model_version,
				classified_at = EXCLUDED.classified_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert classification: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert classification %s: %w", c.PostID, err)
		}
	}
	return nil
}

// SelectUnconsumed returns digest candidates: signal category, never consumed,
// confidence at or above the threshold, best posts first.
func (r *PostgresRepository) SelectUnconsumed(ctx context.Context, project string, limit int, minConfidence float64) ([]domain.Story, error) {
	signal := make([]string, 0, 3)
	for _, category := range domain.SignalCategories() {
		signal = append(signal, string(category))
	}

	query, args, err := r.sb.
		Select(storyColumns...).
		From("classifications c").
		Join("posts p ON p.id = c.post_id").
		Where(sq.Eq{"c.project": project, "c.category": signal}).
		Where("c.sent_in_digest_at IS NULL").
		Where(sq.GtOrEq{"c.confidence": minConfidence}).
		OrderBy("p.score DESC", "c.confidence DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build digest selection: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digest candidates: %w", err)
	}
	defer rows.Close()

	var stories []domain.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return stories, nil
}

// MarkConsumed stamps sent_in_digest_at for the whole batch in one update.
// Consumption is monotonic: rows already stamped are not touched again.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, postIDs []string, project string, at time.Time) error {
	if len(postIDs) == 0 {
		return nil
	}

	query, args, err := r.sb.
		Update("classifications").
		Set("sent_in_digest_at", at).
		Where(sq.Eq{"post_id": postIDs, "project": project}).
		Where("sent_in_digest_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark consumed: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark %d posts consumed: %w", len(postIDs), err)
	}
	return nil
}

// SaveScanHistory appends one bookkeeping row per scan.
func (r *PostgresRepository) SaveScanHistory(ctx context.Context, record domain.ScanRecord) error {
	query, args, err := r.sb.
		Insert("scan_history").
		Columns("label", "source", "project", "posts_fetched", "posts_classified",
			"posts_cached", "signal_ratio", "scan_date").
		Values(record.Label, record.Source, record.Project, record.PostsFetched,
			record.PostsClassified, record.PostsCached, record.SignalRatio, record.ScanDate).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert scan history: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert scan history: %w", err)
	}
	return nil
}

// ScanHistory lists recent scans, optionally filtered by label.
func (r *PostgresRepository) ScanHistory(ctx context.Context, label string, limit int) ([]domain.ScanRecord, error) {
	builder := r.sb.
		Select("label", "source", "project", "posts_fetched", "posts_classified",
			"posts_cached", "signal_ratio", "scan_date").
		From("scan_history").
		OrderBy("scan_date DESC").
		Limit(uint64(limit))
	if label != "" {
		builder = builder.Where(sq.Eq{"label": label})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var records []domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		if err := rows.Scan(&rec.Label, &rec.Source, &rec.Project, &rec.PostsFetched,
			&rec.PostsClassified, &rec.PostsCached, &rec.SignalRatio, &rec.ScanDate); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// SaveBookmark inserts a bookmark once; a second save of the same story id is
// a no-op reported through created=false.
func (r *PostgresRepository) SaveBookmark(ctx context.Context, bookmark domain.Bookmark) (bool, error) {
	query, args, err := r.sb.
		Insert("bookmarks").
		Columns("story_id", "digest_date", "post_id", "title", "url", "source",
			"category", "topic_tags", "format_tag", "notes", "status").
		Values(bookmark.StoryID, bookmark.DigestDate, nullable(bookmark.PostID),
			bookmark.Title, nullable(bookmark.URL), nullable(bookmark.Source),
			nullable(string(bookmark.Category)), pq.Array(emptyIfNil(bookmark.TopicTags)),
			nullable(bookmark.FormatTag), bookmark.Notes, string(bookmark.Status)).
		Suffix("ON CONFLICT (story_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert bookmark: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert bookmark %s: %w", bookmark.StoryID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert bookmark %s: %w", bookmark.StoryID, err)
	}
	return affected > 0, nil
}

// Bookmarks lists saved stories newest first, optionally filtered by status.
func (r *PostgresRepository) Bookmarks(ctx context.Context, status domain.BookmarkStatus, limit int) ([]domain.Bookmark, error) {
	builder := r.sb.
		Select("story_id", "digest_date", "post_id", "title", "url", "source",
			"category", "topic_tags", "format_tag", "notes", "status",
			"created_at", "updated_at").
		From("bookmarks").
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bookmarks query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []domain.Bookmark
	for rows.Next() {
		var (
			b         domain.Bookmark
			postID    sql.NullString
			url       sql.NullString
			source    sql.NullString
			category  sql.NullString
			formatTag sql.NullString
			rawStatus string
		)
		if err := rows.Scan(&b.StoryID, &b.DigestDate, &postID, &b.Title, &url,
			&source, &category, pq.Array(&b.TopicTags), &formatTag, &b.Notes,
			&rawStatus, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.PostID = postID.String
		b.URL = url.String
		b.Source = source.String
		b.Category = domain.Category(category.String)
		b.FormatTag = formatTag.String
		b.Status = domain.BookmarkStatus(rawStatus)
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return bookmarks, nil
}

// UpdateBookmarkStatus moves a bookmark through the workflow.
func (r *PostgresRepository) UpdateBookmarkStatus(ctx context.Context, storyID string, status domain.BookmarkStatus) (bool, error) {
	query, args, err := r.sb.
		Update("bookmarks").
		Set("status", string(status)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"story_id": storyID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update bookmark: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update bookmark %s: %w", storyID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update bookmark %s: %w", storyID, err)
	}
	return affected > 0, nil
}

// Stats reports overall cache totals plus the per-category breakdown and the
// consumed count for one project.
func (r *PostgresRepository) Stats(ctx context.Context, project string) (domain.ProjectStats, error) {
	stats := domain.ProjectStats{CategoryCounts: map[domain.Category]int{}}

	row := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts")
	if err := row.Scan(&stats.TotalPosts); err != nil {
		return domain.ProjectStats{}, fmt.Errorf("count posts: %w", err)
	}
	row = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM classifications")
	if err := row.Scan(&stats.TotalClassifications); err != nil {
		return domain.ProjectStats{}, fmt.Errorf("count classifications: %w", err)
	}

	query, args, err := r.sb.
		Select("category", "COUNT(*)").
		From("classifications").
		Where(sq.Eq{"project": project}).
		GroupBy("category").
		ToSql()
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("build category counts: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return domain.ProjectStats{}, fmt.Errorf("scan category count: %w", err)
		}
		stats.CategoryCounts[domain.Category(category)] = count
		stats.ProjectClassifications += count
	}
	if err := rows.Err(); err != nil {
		return domain.ProjectStats{}, fmt.Errorf("rows iteration: %w", err)
	}

	query, args, err = r.sb.
		Select("COUNT(*)").
		From("classifications").
		Where(sq.Eq{"project": project}).
		Where("sent_in_digest_at IS NOT NULL").
		ToSql()
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("build consumed count: %w", err)
	}
	row = r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&stats.ConsumedCount); err != nil {
		return domain.ProjectStats{}, fmt.Errorf("count consumed: %w", err)
	}

	return stats, nil
}

var classificationColumns = []string{
	"post_id", "source", "project", "category", "confidence",
	"red_flags", "reasoning", "topic_tags", "format_tag",
	"tier_tags", "tier_clusters", "tier_scoring",
	"model_version", "classified_at", "sent_in_digest_at",
}

var storyColumns = append([]string{
	"c.post_id", "c.source", "c.project", "c.category", "c.confidence",
	"c.red_flags", "c.reasoning", "c.topic_tags", "c.format_tag",
	"c.tier_tags", "c.tier_clusters", "c.tier_scoring",
	"c.model_version", "c.classified_at", "c.sent_in_digest_at",
}, "p.id", "p.source", "p.subreddit", "p.title", "p.author",
	"p.score", "p.num_comments", "p.created_at", "p.url", "p.selftext")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClassification(row rowScanner) (domain.Classification, error) {
	var (
		c           domain.Classification
		category    string
		formatTag   sql.NullString
		tierTags    []byte
		tierScoring sql.NullInt64
		sentAt      sql.NullTime
	)

	err := row.Scan(&c.PostID, &c.Source, &c.Project, &category, &c.Confidence,
		pq.Array(&c.RedFlags), &c.Reasoning, pq.Array(&c.TopicTags), &formatTag,
		&tierTags, pq.Array(&c.TierClusters), &tierScoring,
		&c.ModelVersion, &c.ClassifiedAt, &sentAt)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("scan classification: %w", err)
	}

	c.Category = domain.Category(category)
	c.FormatTag = formatTag.String
	if tierScoring.Valid {
		v := int(tierScoring.Int64)
		c.TierScoring = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentInDigestAt = &t
	}
	if len(tierTags) > 0 {
		if err := json.Unmarshal(tierTags, &c.TierTags); err != nil {
			return domain.Classification{}, fmt.Errorf("decode tier tags for %s: %w", c.PostID, err)
		}
	}
	return c, nil
}

func scanStory(row rowScanner) (domain.Story, error) {
	var (
		c           domain.Classification
		category    string
		formatTag   sql.NullString
		tierTags    []byte
		tierScoring sql.NullInt64
		sentAt      sql.NullTime

		p         domain.Post
		subreddit sql.NullString
		author    sql.NullString
		createdAt sql.NullTime
		url       sql.NullString
	)

	err := row.Scan(&c.PostID, &c.Source, &c.Project, &category, &c.Confidence,
		pq.Array(&c.RedFlags), &c.Reasoning, pq.Array(&c.TopicTags), &formatTag,
		&tierTags, pq.Array(&c.TierClusters), &tierScoring,
		&c.ModelVersion, &c.ClassifiedAt, &sentAt,
		&p.ID, &p.Source, &subreddit, &p.Title, &author,
		&p.Score, &p.NumComments, &createdAt, &url, &p.Selftext)
	if err != nil {
		return domain.Story{}, fmt.Errorf("scan story: %w", err)
	}

	c.Category = domain.Category(category)
	c.FormatTag = formatTag.String
	if tierScoring.Valid {
		v := int(tierScoring.Int64)
		c.TierScoring = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentInDigestAt = &t
	}
	if len(tierTags) > 0 {
		if err := json.Unmarshal(tierTags, &c.TierTags); err != nil {
			return domain.Story{}, fmt.Errorf("decode tier tags for %s: %w", c.PostID, err)
		}
	}

	p.Subreddit = subreddit.String
	p.Author = author.String
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	p.URL = url.String

	return domain.Story{Post: p, Classification: c}, nil
}

func marshalTierTags(tags map[string][]string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

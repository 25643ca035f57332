// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kb implements the operational knowledge base: a versioned
// article store with an editorial review workflow, two-tier retrieval,
// a citation-bearing Ask wrapper, and a directory-import pipeline.
package kb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ops-console/pkg/types"
)

const dbFile = "kb.db"

// timeFormat is RFC 3339 with a fixed-width nanosecond fraction.
// Timestamps are stored as TEXT and compared lexicographically in SQL,
// so the fraction must never be trimmed: with variable width, "...00.5Z"
// would sort after "...00.51Z".
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store manages the knowledge base SQLite database. All multi-statement
// writes run inside a single transaction; reads do not take
// transactions and may observe a slightly stale view under concurrent
// writers, which WAL mode permits.
type Store struct {
	db           *sql.DB
	dataDir      string
	reviewWindow time.Duration
	pageSize     int
	metrics      *Metrics
}

// Open creates or opens the knowledge base database at dataDir/kb.db.
// It enables WAL journaling and foreign keys and creates the schema if
// it does not exist.
func Open(cfg types.KnowledgeBaseConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	window := cfg.ReviewWindow
	if window <= 0 {
		window = types.DefaultReviewWindow
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	s := &Store{
		db:           db,
		dataDir:      cfg.DataDir,
		reviewWindow: window,
		pageSize:     pageSize,
		metrics:      NewMetrics(),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Metrics returns the quality-metrics recorder for this store.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'general',
			severity TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'draft',
			current_version INTEGER NOT NULL DEFAULT 1,
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS article_versions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id TEXT NOT NULL REFERENCES articles(id),
			version INTEGER NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			change_note TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL DEFAULT 'manual',
			source_ref TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE(article_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS article_tags (
			article_id TEXT NOT NULL REFERENCES articles(id),
			tag_id INTEGER NOT NULL REFERENCES tags(id),
			UNIQUE(article_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id TEXT NOT NULL REFERENCES articles(id),
			version INTEGER NOT NULL,
			action TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			operator TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS article_refs (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id TEXT NOT NULL REFERENCES articles(id),
			ref_type TEXT NOT NULL,
			ref_path TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_updated ON articles(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_type_path ON article_refs(ref_type, ref_path)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// newArticleID returns a stateless globally unique id: a UTC timestamp
// plus a cryptographically random suffix. No shared counter involved.
func newArticleID() string {
	var suffix [4]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("kb-%s-%s",
		time.Now().UTC().Format("20060102150405"), hex.EncodeToString(suffix[:]))
}

// ArticleInput carries the caller-supplied fields for create and
// update. On update, blank fields fall back to the stored values and an
// empty tag set means "leave tags unchanged".
type ArticleInput struct {
	Title      string
	Summary    string
	Category   string
	Severity   types.Severity
	Content    string
	Tags       []string
	Actor      string
	ChangeNote string
	SourceType types.SourceType
	SourceRef  string
	RefTitle   string
}

// CreateArticle inserts a new article in draft status with version 1.
// The article row, version row, tag links, optional reference row, and
// the create review record are written atomically. The returned article
// is fully hydrated.
func (s *Store) CreateArticle(ctx context.Context, in ArticleInput) (*types.Article, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "general"
	}
	changeNote := in.ChangeNote
	if changeNote == "" {
		changeNote = "initial version"
	}
	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = types.SourceManual
	}

	id := newArticleID()
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (id, title, summary, category, severity, status, current_version,
			created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		id, title, in.Summary, category, string(types.NormalizeSeverity(in.Severity)),
		string(types.StatusDraft), in.Actor, in.Actor, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting article: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO article_versions (article_id, version, content, change_note, source_type, source_ref, author, created_at)
		 VALUES (?, 1, ?, ?, ?, ?, ?, ?)`,
		id, in.Content, changeNote, string(sourceType), in.SourceRef, in.Actor, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting version: %w", err)
	}

	if err := replaceTags(ctx, tx, id, in.Tags); err != nil {
		return nil, err
	}

	if in.SourceRef != "" && in.SourceType != "" {
		refTitle := in.RefTitle
		if refTitle == "" {
			refTitle = title
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO article_refs (article_id, ref_type, ref_path, title, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, string(in.SourceType), in.SourceRef, refTitle, now,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting reference: %w", err)
		}
	}

	if err := insertReview(ctx, tx, id, 1, types.ActionCreate, changeNote, in.Actor, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing create: %w", err)
	}

	return s.GetArticle(ctx, id)
}

// UpdateArticle appends a new version and advances the current_version
// pointer. The current row is read inside the write transaction for
// read-then-write consistency. Blank input fields keep their stored
// values; a non-empty tag set replaces the links wholesale.
func (s *Store) UpdateArticle(ctx context.Context, id string, in ArticleInput) (*types.Article, error) {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		title, summary, category, severity string
		currentVersion                     int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT title, summary, category, severity, current_version FROM articles WHERE id = ?`, id,
	).Scan(&title, &summary, &category, &severity, &currentVersion)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading article %s: %w", id, err)
	}

	var content string
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM article_versions WHERE article_id = ? AND version = ?`, id, currentVersion,
	).Scan(&content)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("loading current version: %w", err)
	}

	if t := strings.TrimSpace(in.Title); t != "" {
		title = t
	}
	if in.Summary != "" {
		summary = in.Summary
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		category = c
	}
	if in.Severity != "" {
		severity = string(types.NormalizeSeverity(in.Severity))
	}
	if in.Content != "" {
		content = in.Content
	}
	changeNote := in.ChangeNote
	if changeNote == "" {
		changeNote = "updated"
	}
	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = types.SourceManual
	}

	next := currentVersion + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO article_versions (article_id, version, content, change_note, source_type, source_ref, author, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, next, content, changeNote, string(sourceType), in.SourceRef, in.Actor, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting version %d: %w", next, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET title = ?, summary = ?, category = ?, severity = ?,
			current_version = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		title, summary, category, severity, next, in.Actor, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating article: %w", err)
	}

	if len(in.Tags) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, id); err != nil {
			return nil, fmt.Errorf("clearing tags: %w", err)
		}
		if err := replaceTags(ctx, tx, id, in.Tags); err != nil {
			return nil, err
		}
	}

	if err := insertReview(ctx, tx, id, next, types.ActionUpdate, changeNote, in.Actor, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	return s.GetArticle(ctx, id)
}

// replaceTags links the article to each tag name, creating missing tags.
// Names are lower-cased and deduplicated; tag sets are replaced
// wholesale rather than diffed, under the caller's transaction.
func replaceTags(ctx context.Context, tx *sql.Tx, articleID string, tags []string) error {
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("inserting tag %q: %w", name, err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO article_tags (article_id, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`, articleID, name)
		if err != nil {
			return fmt.Errorf("linking tag %q: %w", name, err)
		}
	}
	return nil
}

func insertReview(ctx context.Context, tx *sql.Tx, articleID string, version int, action types.ReviewAction, comment, operator, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (article_id, version, action, comment, operator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		articleID, version, string(action), comment, operator, now,
	)
	if err != nil {
		return fmt.Errorf("inserting review record: %w", err)
	}
	return nil
}

// GetArticle returns the article with tags, references, versions, and
// review records attached.
func (s *Store) GetArticle(ctx context.Context, id string) (*types.Article, error) {
	a, err := s.scanArticleRow(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Tags, err = s.articleTags(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id, version, content, change_note, source_type, source_ref, author, created_at
		 FROM article_versions WHERE article_id = ? ORDER BY version`, id)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v types.ArticleVersion
		var srcType, created string
		if err := rows.Scan(&v.ArticleID, &v.Version, &v.Content, &v.ChangeNote,
			&srcType, &v.SourceRef, &v.Author, &created); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		v.SourceType = types.SourceType(srcType)
		v.CreatedAt = parseTime(created)
		a.Versions = append(a.Versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reviews, err := s.db.QueryContext(ctx,
		`SELECT article_id, version, action, comment, operator, created_at
		 FROM reviews WHERE article_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("loading reviews: %w", err)
	}
	defer reviews.Close()
	for reviews.Next() {
		var r types.ReviewRecord
		var action, created string
		if err := reviews.Scan(&r.ArticleID, &r.Version, &action, &r.Comment, &r.Operator, &created); err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		r.Action = types.ReviewAction(action)
		r.CreatedAt = parseTime(created)
		a.Reviews = append(a.Reviews, r)
	}
	if err := reviews.Err(); err != nil {
		return nil, err
	}

	refs, err := s.db.QueryContext(ctx,
		`SELECT article_id, ref_type, ref_path, title, created_at
		 FROM article_refs WHERE article_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("loading references: %w", err)
	}
	defer refs.Close()
	for refs.Next() {
		var r types.ArticleRef
		var created string
		if err := refs.Scan(&r.ArticleID, &r.RefType, &r.RefPath, &r.Title, &created); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		r.CreatedAt = parseTime(created)
		a.Refs = append(a.Refs, r)
	}
	if err := refs.Err(); err != nil {
		return nil, err
	}

	return a, nil
}

// ListQuery holds the filters and paging for ListArticles.
type ListQuery struct {
	// Query is OR-matched as a substring over title, summary, current
	// version content, and tag names.
	Query string

	Status   types.ArticleStatus
	Severity types.Severity
	Tag      string

	// Page is 1-indexed; PageSize defaults to the store page size and
	// is clamped to the hard maximum.
	Page     int
	PageSize int

	// IncludeArchived keeps archived articles in the result. When false
	// and no explicit Status is given, archived articles are excluded.
	IncludeArchived bool
}

// ListArticles returns one page of articles, most recently updated
// first, plus the total match count. Results carry tags and the derived
// needs-review flag but not version or review history.
func (s *Store) ListArticles(ctx context.Context, q ListQuery) ([]types.Article, int, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	where, args := buildListFilter(q)

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles a`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting articles: %w", err)
	}

	query := `SELECT a.id, a.title, a.summary, a.category, a.severity, a.status,
		a.current_version, a.created_by, a.updated_by, a.created_at, a.updated_at
		FROM articles a` + where + ` ORDER BY a.updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	var articles []types.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range articles {
		if articles[i].Tags, err = s.articleTags(ctx, articles[i].ID); err != nil {
			return nil, 0, err
		}
		articles[i].NeedsReview = s.needsReview(&articles[i])
	}

	return articles, total, nil
}

// buildListFilter returns the WHERE clause and arguments shared by the
// list count and page queries.
func buildListFilter(q ListQuery) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if text := strings.TrimSpace(q.Query); text != "" {
		like := "%" + text + "%"
		clauses = append(clauses, `(a.title LIKE ? OR a.summary LIKE ?
			OR EXISTS (SELECT 1 FROM article_versions v
				WHERE v.article_id = a.id AND v.version = a.current_version AND v.content LIKE ?)
			OR EXISTS (SELECT 1 FROM article_tags at JOIN tags t ON t.id = at.tag_id
				WHERE at.article_id = a.id AND t.name LIKE ?))`)
		args = append(args, like, like, like, like)
	}
	if q.Status != "" {
		clauses = append(clauses, `a.status = ?`)
		args = append(args, string(q.Status))
	} else if !q.IncludeArchived {
		clauses = append(clauses, `a.status != ?`)
		args = append(args, string(types.StatusArchived))
	}
	if q.Severity != "" {
		clauses = append(clauses, `a.severity = ?`)
		args = append(args, string(q.Severity))
	}
	if tag := strings.ToLower(strings.TrimSpace(q.Tag)); tag != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM article_tags at JOIN tags t ON t.id = at.tag_id
			WHERE at.article_id = a.id AND t.name = ?)`)
		args = append(args, tag)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) scanArticleRow(ctx context.Context, id string) (*types.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.title, a.summary, a.category, a.severity, a.status,
			a.current_version, a.created_by, a.updated_by, a.created_at, a.updated_at
		 FROM articles a WHERE a.id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	a.NeedsReview = s.needsReview(a)
	return a, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*types.Article, error) {
	var a types.Article
	var severity, status, created, updated string
	err := row.Scan(&a.ID, &a.Title, &a.Summary, &a.Category, &severity, &status,
		&a.CurrentVersion, &a.CreatedBy, &a.UpdatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Severity = types.Severity(severity)
	a.Status = types.ArticleStatus(status)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

func (s *Store) articleTags(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tags t JOIN article_tags at ON at.tag_id = t.id
		 WHERE at.article_id = ? ORDER BY t.name`, id)
	if err != nil {
		return nil, fmt.Errorf("loading tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// currentContent returns the content of the article's current version,
// or "" when the version row is missing.
func (s *Store) currentContent(ctx context.Context, id string, version int) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM article_versions WHERE article_id = ? AND version = ?`, id, version,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading content for %s v%d: %w", id, version, err)
	}
	return content, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

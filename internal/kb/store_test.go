// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/ops-console/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) *Store {
	t.Helper()
	return testSetupWindow(t, 0)
}

// testSetupWindow opens a store with an explicit review window; zero
// means the default.
func testSetupWindow(t *testing.T, window time.Duration) *Store {
	t.Helper()
	cfg := types.KnowledgeBaseConfig{
		DataDir:      t.TempDir(),
		ReviewWindow: window,
	}
	store, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleInput(title string) ArticleInput {
	return ArticleInput{
		Title:    title,
		Summary:  "Steps to drain and restart the upload queue",
		Category: "runbook",
		Severity: types.SeverityHigh,
		Content:  "# " + title + "\n\nDrain the queue, then restart the workers.",
		Tags:     []string{"upload", "queue", "runbook"},
		Actor:    "alice",
	}
}

func mustCreate(t *testing.T, store *Store, in ArticleInput) *types.Article {
	t.Helper()
	a, err := store.CreateArticle(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// publishHelper drives an article through submit and approve.
func publishHelper(t *testing.T, store *Store, id string) *types.Article {
	t.Helper()
	ctx := context.Background()
	if _, err := store.ApplyAction(ctx, id, types.ActionSubmit, "bob", ""); err != nil {
		t.Fatal(err)
	}
	a, err := store.ApplyAction(ctx, id, types.ActionApprove, "bob", "looks good")
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// maxVersion returns the highest version number stored for the article.
func maxVersion(t *testing.T, store *Store, id string) int {
	t.Helper()
	var v int
	err := store.db.QueryRow(
		`SELECT coalesce(max(version), 0) FROM article_versions WHERE article_id = ?`, id,
	).Scan(&v)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func errIsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func errIsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func readExport(dataDir, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dataDir, name))
}

// setUpdatedAt overwrites the stored update timestamp directly.
func setUpdatedAt(t *testing.T, store *Store, id string, ts time.Time) {
	t.Helper()
	if _, err := store.db.Exec(`UPDATE articles SET updated_at = ? WHERE id = ?`,
		formatTime(ts), id); err != nil {
		t.Fatal(err)
	}
}

// --- schema tests ---

func TestOpenCreatesSchema(t *testing.T) {
	store := testSetup(t)

	tables := []string{"articles", "article_versions", "tags", "article_tags", "reviews", "article_refs"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

// --- create tests ---

func TestCreateArticle(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Upload Queue Saturation Runbook"))

	if a.Status != types.StatusDraft {
		t.Errorf("Status = %q, want draft", a.Status)
	}
	if a.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", a.CurrentVersion)
	}
	if a.Category != "runbook" {
		t.Errorf("Category = %q, want runbook", a.Category)
	}
	if a.Severity != types.SeverityHigh {
		t.Errorf("Severity = %q, want high", a.Severity)
	}
	if a.CreatedBy != "alice" || a.UpdatedBy != "alice" {
		t.Errorf("CreatedBy/UpdatedBy = %q/%q, want alice", a.CreatedBy, a.UpdatedBy)
	}
	if len(a.Versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(a.Versions))
	}
	if a.Versions[0].ChangeNote != "initial version" {
		t.Errorf("ChangeNote = %q, want initial version", a.Versions[0].ChangeNote)
	}
	if len(a.Reviews) != 1 || a.Reviews[0].Action != types.ActionCreate {
		t.Errorf("Reviews = %v, want one create record", a.Reviews)
	}
	// The audit comment carries the same defaulted note as the version row.
	if a.Reviews[0].Comment != "initial version" {
		t.Errorf("review comment = %q, want initial version", a.Reviews[0].Comment)
	}
	want := []string{"queue", "runbook", "upload"}
	if len(a.Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", a.Tags, want)
	}
	for i, tag := range want {
		if a.Tags[i] != tag {
			t.Errorf("Tags[%d] = %q, want %q", i, a.Tags[i], tag)
		}
	}
}

func TestCreateArticleIDFormat(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("ID Format Check"))

	pattern := regexp.MustCompile(`^kb-\d{14}-[0-9a-f]{8}$`)
	if !pattern.MatchString(a.ID) {
		t.Errorf("ID %q does not match kb-<timestamp>-<hex>", a.ID)
	}
}

func TestCreateArticleDefaults(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, ArticleInput{Title: "Bare Minimum"})

	if a.Category != "general" {
		t.Errorf("Category = %q, want general", a.Category)
	}
	if a.Severity != types.SeverityMedium {
		t.Errorf("Severity = %q, want medium", a.Severity)
	}
	if a.Status != types.StatusDraft {
		t.Errorf("Status = %q, want draft", a.Status)
	}
}

func TestCreateArticleNormalizesSeverity(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, ArticleInput{Title: "Weird Severity", Severity: "catastrophic"})

	if a.Severity != types.SeverityMedium {
		t.Errorf("Severity = %q, want medium fallback", a.Severity)
	}
}

func TestCreateArticleRequiresTitle(t *testing.T) {
	store := testSetup(t)

	for _, title := range []string{"", "   "} {
		_, err := store.CreateArticle(context.Background(), ArticleInput{Title: title})
		if !errIsInvalidInput(err) {
			t.Errorf("title %q: err = %v, want ErrInvalidInput", title, err)
		}
	}
}

func TestCreateArticleDedupesTags(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, ArticleInput{
		Title: "Tag Dedup",
		Tags:  []string{"Upload", "upload", " UPLOAD ", "queue"},
	})

	if len(a.Tags) != 2 {
		t.Fatalf("Tags = %v, want [queue upload]", a.Tags)
	}
	if a.Tags[0] != "queue" || a.Tags[1] != "upload" {
		t.Errorf("Tags = %v, want [queue upload]", a.Tags)
	}
}

// --- get tests ---

func TestGetArticleNotFound(t *testing.T) {
	store := testSetup(t)

	_, err := store.GetArticle(context.Background(), "kb-00000000000000-deadbeef")
	if !errIsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- update tests ---

func TestUpdateArticleAppendsVersion(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Versioned Article"))

	updated, err := store.UpdateArticle(context.Background(), a.ID, ArticleInput{
		Content:    "New content for version two.",
		Actor:      "carol",
		ChangeNote: "rewrote the steps",
	})
	if err != nil {
		t.Fatal(err)
	}

	if updated.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", updated.CurrentVersion)
	}
	if got := maxVersion(t, store, a.ID); got != updated.CurrentVersion {
		t.Errorf("current_version = %d but max stored version = %d", updated.CurrentVersion, got)
	}
	if len(updated.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(updated.Versions))
	}
	// The original snapshot must be untouched.
	if !strings.Contains(updated.Versions[0].Content, "Drain the queue") {
		t.Errorf("version 1 content changed: %q", updated.Versions[0].Content)
	}
	if updated.Versions[1].Content != "New content for version two." {
		t.Errorf("version 2 content = %q", updated.Versions[1].Content)
	}
	if updated.UpdatedBy != "carol" {
		t.Errorf("UpdatedBy = %q, want carol", updated.UpdatedBy)
	}
}

func TestUpdateArticleBlankFieldsKeepValues(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Stable Fields"))

	updated, err := store.UpdateArticle(context.Background(), a.ID, ArticleInput{
		Content: "Only the content changes.",
		Actor:   "carol",
	})
	if err != nil {
		t.Fatal(err)
	}

	if updated.Title != "Stable Fields" {
		t.Errorf("Title = %q, want unchanged", updated.Title)
	}
	if updated.Summary != a.Summary {
		t.Errorf("Summary = %q, want unchanged", updated.Summary)
	}
	if updated.Category != "runbook" {
		t.Errorf("Category = %q, want unchanged", updated.Category)
	}
	if updated.Severity != types.SeverityHigh {
		t.Errorf("Severity = %q, want unchanged", updated.Severity)
	}
}

func TestUpdateArticleReplacesTagsWholesale(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Tag Replacement"))

	updated, err := store.UpdateArticle(context.Background(), a.ID, ArticleInput{
		Tags:  []string{"storage", "disk"},
		Actor: "carol",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(updated.Tags) != 2 || updated.Tags[0] != "disk" || updated.Tags[1] != "storage" {
		t.Errorf("Tags = %v, want [disk storage]", updated.Tags)
	}
}

func TestUpdateArticleEmptyTagsUnchanged(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Tags Stay"))

	updated, err := store.UpdateArticle(context.Background(), a.ID, ArticleInput{
		Content: "content only",
		Actor:   "carol",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(updated.Tags) != 3 {
		t.Errorf("Tags = %v, want the original three", updated.Tags)
	}
}

func TestUpdateArticleDefaultsChangeNote(t *testing.T) {
	store := testSetup(t)
	a := mustCreate(t, store, sampleInput("Noteless Update"))

	updated, err := store.UpdateArticle(context.Background(), a.ID, ArticleInput{
		Content: "new body",
		Actor:   "carol",
	})
	if err != nil {
		t.Fatal(err)
	}

	if updated.Versions[1].ChangeNote != "updated" {
		t.Errorf("version ChangeNote = %q, want updated", updated.Versions[1].ChangeNote)
	}
	last := updated.Reviews[len(updated.Reviews)-1]
	if last.Comment != "updated" {
		t.Errorf("review comment = %q, want the same defaulted note", last.Comment)
	}
}

func TestUpdateArticleNotFound(t *testing.T) {
	store := testSetup(t)

	_, err := store.UpdateArticle(context.Background(), "kb-missing", ArticleInput{Content: "x"})
	if !errIsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- list tests ---

func TestListArticlesFilters(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	mustCreate(t, store, sampleInput("Upload Queue Saturation Runbook"))
	mustCreate(t, store, ArticleInput{
		Title:    "Disk Pressure Mitigation",
		Severity: types.SeverityLow,
		Tags:     []string{"storage"},
	})
	archived := mustCreate(t, store, ArticleInput{Title: "Legacy Procedure"})
	if _, err := store.ApplyAction(ctx, archived.ID, types.ActionArchive, "bob", ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		query     ListQuery
		wantTotal int
	}{
		{
			name:      "default excludes archived",
			query:     ListQuery{},
			wantTotal: 2,
		},
		{
			name:      "include archived",
			query:     ListQuery{IncludeArchived: true},
			wantTotal: 3,
		},
		{
			name:      "explicit status overrides exclusion",
			query:     ListQuery{Status: types.StatusArchived},
			wantTotal: 1,
		},
		{
			name:      "severity filter",
			query:     ListQuery{Severity: types.SeverityLow},
			wantTotal: 1,
		},
		{
			name:      "tag filter",
			query:     ListQuery{Tag: "storage"},
			wantTotal: 1,
		},
		{
			name:      "text filter matches title",
			query:     ListQuery{Query: "Saturation"},
			wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles, total, err := store.ListArticles(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			for _, a := range articles {
				if tt.name == "default excludes archived" && a.ID == archived.ID {
					t.Errorf("archived article %s returned without IncludeArchived", a.ID)
				}
			}
		})
	}
}

func TestListArticlesPaging(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustCreate(t, store, ArticleInput{Title: fmt.Sprintf("Article %d", i)})
	}

	page1, total, err := store.ListArticles(ctx, ListQuery{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page1) != 2 {
		t.Errorf("page 1 size = %d, want 2", len(page1))
	}

	page3, _, err := store.ListArticles(ctx, ListQuery{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page3) != 1 {
		t.Errorf("page 3 size = %d, want 1", len(page3))
	}

	// Out-of-range pages are empty, not errors.
	page9, _, err := store.ListArticles(ctx, ListQuery{Page: 9, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page9) != 0 {
		t.Errorf("page 9 size = %d, want 0", len(page9))
	}
}

func TestListArticlesClampsPageSize(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	mustCreate(t, store, ArticleInput{Title: "Single"})

	// A page size beyond the maximum must not fail; it is clamped.
	articles, _, err := store.ListArticles(ctx, ListQuery{PageSize: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 {
		t.Errorf("got %d articles, want 1", len(articles))
	}
}

// Stored timestamps are compared lexicographically in SQL, so the text
// form must sort exactly like the instants it encodes.
func TestFormatTimeFixedWidth(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pairs := []struct {
		older, newer time.Time
	}{
		{base.Add(500 * time.Millisecond), base.Add(510 * time.Millisecond)},
		{base, base.Add(500 * time.Millisecond)},
		{base.Add(999 * time.Millisecond), base.Add(time.Second)},
	}
	for _, p := range pairs {
		if formatTime(p.older) >= formatTime(p.newer) {
			t.Errorf("formatTime(%v) = %q does not sort before formatTime(%v) = %q",
				p.older, formatTime(p.older), p.newer, formatTime(p.newer))
		}
	}
}

func TestListArticlesOrdersSubsecondUpdates(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	older := mustCreate(t, store, ArticleInput{Title: "Older Article"})
	newer := mustCreate(t, store, ArticleInput{Title: "Newer Article"})

	// Same second, fractions whose trimmed forms would sort backwards.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	setUpdatedAt(t, store, older.ID, base.Add(500*time.Millisecond))
	setUpdatedAt(t, store, newer.ID, base.Add(510*time.Millisecond))

	articles, _, err := store.ListArticles(ctx, ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].ID != newer.ID {
		t.Errorf("got %q first, want the more recently updated %q",
			articles[0].Title, "Newer Article")
	}
}

func TestOpenClampsConfiguredPageSize(t *testing.T) {
	store, err := Open(types.KnowledgeBaseConfig{
		DataDir:  t.TempDir(),
		PageSize: 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if store.pageSize != maxPageSize {
		t.Errorf("pageSize = %d, want clamped to %d", store.pageSize, maxPageSize)
	}
}

// --- export tests ---

func TestExportYAMLWritesFile(t *testing.T) {
	cfg := types.KnowledgeBaseConfig{DataDir: t.TempDir()}
	store, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	mustCreate(t, store, sampleInput("Exported Article"))
	if err := store.ExportYAML(context.Background(), ListQuery{}); err != nil {
		t.Fatal(err)
	}

	data, err := readExport(cfg.DataDir, "export.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Exported Article") {
		t.Error("export.yaml does not contain the article title")
	}
	if !strings.Contains(string(data), "Drain the queue") {
		t.Error("export.yaml does not contain the article content")
	}
}

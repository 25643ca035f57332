// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const importRefType = "import"

// ImportSummary holds counts from a docs import run.
type ImportSummary struct {
	Imported int      `json:"imported" yaml:"imported"`
	Updated  int      `json:"updated" yaml:"updated"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Files    []string `json:"files" yaml:"files"`
}

// ImportDocs walks root, importing every Markdown file as an article.
// The (ref_type, ref_path) key keeps re-runs idempotent: a known path
// is updated in place with its version history preserved, an unknown
// one creates a new article. Unreadable and empty files are counted as
// skipped and never abort the walk. Per-file outcomes go to w.
func (s *Store) ImportDocs(ctx context.Context, root, operator string, w io.Writer) (ImportSummary, error) {
	var summary ImportSummary

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isMarkdown(path) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "skipped %s: %v\n", rel, err)
			summary.Skipped++
			return nil
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			fmt.Fprintf(w, "skipped %s: empty\n", rel)
			summary.Skipped++
			return nil
		}

		title := docTitle(content, path)
		in := ArticleInput{
			Title:      title,
			Summary:    firstBodyLine(content, 160),
			Content:    content,
			Tags:       docTags(rel),
			Actor:      operator,
			SourceType: importRefType,
			SourceRef:  rel,
			RefTitle:   title,
		}

		existingID, err := s.findByRef(ctx, importRefType, rel)
		if err != nil {
			return err
		}

		if existingID != "" {
			in.ChangeNote = "sync docs import"
			if _, err := s.UpdateArticle(ctx, existingID, in); err != nil {
				return fmt.Errorf("updating %s: %w", rel, err)
			}
			fmt.Fprintf(w, "updated %s\n", rel)
			summary.Updated++
		} else {
			in.ChangeNote = "initial docs import"
			if _, err := s.CreateArticle(ctx, in); err != nil {
				return fmt.Errorf("importing %s: %w", rel, err)
			}
			fmt.Fprintf(w, "imported %s\n", rel)
			summary.Imported++
		}

		summary.Files = append(summary.Files, rel)
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(summary.Files)
	fmt.Fprintf(w, "\nimported: %d, updated: %d, skipped: %d\n",
		summary.Imported, summary.Updated, summary.Skipped)
	return summary, nil
}

// findByRef returns the article id holding the given reference key, or
// "" when no article does.
func (s *Store) findByRef(ctx context.Context, refType, refPath string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT article_id FROM article_refs WHERE ref_type = ? AND ref_path = ? LIMIT 1`,
		refType, refPath,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up reference %s:%s: %w", refType, refPath, err)
	}
	return id, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// docTitle returns the first "# " heading, or the bare filename.
func docTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// docTags derives tags from the lower-cased directory segments of the
// relative path, always including the base "docs" tag, deduplicated and
// sorted.
func docTags(rel string) []string {
	seen := map[string]bool{"docs": true}
	tags := []string{"docs"}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		seg = strings.ToLower(strings.TrimSpace(seg))
		if seg == "" || seg == "." || seen[seg] {
			continue
		}
		seen[seg] = true
		tags = append(tags, seg)
	}
	sort.Strings(tags)
	return tags
}

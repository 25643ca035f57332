// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ops-console/pkg/types"
)

const exportPageSize = maxPageSize

// ExportEntry is one article with its full content in an export dump.
type ExportEntry struct {
	types.Article `yaml:",inline"`

	// Content is the current version's Markdown body.
	Content string `json:"content" yaml:"content"`
}

// ExportYAML writes the article set matching q to data/export.yaml,
// used for console backups and offline review.
func (s *Store) ExportYAML(ctx context.Context, q ListQuery) error {
	entries, err := s.exportEntries(ctx, q)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dataDir, "export.yaml"), data, 0o644)
}

// ExportJSON writes the article set matching q to data/export.json.
func (s *Store) ExportJSON(ctx context.Context, q ListQuery) error {
	entries, err := s.exportEntries(ctx, q)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dataDir, "export.json"), data, 0o644)
}

// exportEntries pages through the full match set.
func (s *Store) exportEntries(ctx context.Context, q ListQuery) ([]ExportEntry, error) {
	q.PageSize = exportPageSize
	var entries []ExportEntry

	for page := 1; ; page++ {
		q.Page = page
		articles, total, err := s.ListArticles(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("querying for export: %w", err)
		}
		for _, a := range articles {
			content, err := s.currentContent(ctx, a.ID, a.CurrentVersion)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ExportEntry{Article: a, Content: content})
		}
		if len(entries) >= total || len(articles) == 0 {
			break
		}
	}
	return entries, nil
}

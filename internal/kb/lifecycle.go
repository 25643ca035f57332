// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdiddy/ops-console/pkg/types"
)

// nextStatus is the exhaustive lifecycle guard. Every (status, action)
// pair outside the table is an error; a repeated action (submit while
// already reviewing) is rejected rather than silently absorbed.
//
//	submit:  draft     -> reviewing
//	approve: reviewing -> published
//	reject:  reviewing -> draft
//	archive: any non-archived state -> archived
func nextStatus(current types.ArticleStatus, action types.ReviewAction) (types.ArticleStatus, error) {
	switch action {
	case types.ActionSubmit:
		if current == types.StatusDraft {
			return types.StatusReviewing, nil
		}
	case types.ActionApprove:
		if current == types.StatusReviewing {
			return types.StatusPublished, nil
		}
	case types.ActionReject:
		if current == types.StatusReviewing {
			return types.StatusDraft, nil
		}
	case types.ActionArchive:
		if current != types.StatusArchived {
			return types.StatusArchived, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	return "", fmt.Errorf("%w: cannot %s an article in status %q", ErrInvalidInput, action, current)
}

// ApplyAction runs one lifecycle transition and appends its review
// record, both inside a single transaction. The record is written even
// when the stored status value is unchanged, so the audit trail covers
// every call.
func (s *Store) ApplyAction(ctx context.Context, id string, action types.ReviewAction, operator, comment string) (*types.Article, error) {
	started := time.Now()
	now := formatTime(started)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var currentVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT status, current_version FROM articles WHERE id = ?`, id,
	).Scan(&status, &currentVersion)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading article %s: %w", id, err)
	}

	next, err := nextStatus(types.ArticleStatus(status), action)
	if err != nil {
		return nil, err
	}

	if string(next) != status {
		_, err = tx.ExecContext(ctx,
			`UPDATE articles SET status = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			string(next), operator, now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("updating status: %w", err)
		}
	}

	if err := insertReview(ctx, tx, id, currentVersion, action, comment, operator, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", action, err)
	}

	s.metrics.RecordReviewLatency(time.Since(started))

	return s.GetArticle(ctx, id)
}

// RollbackArticle restores an old version by appending a new version
// whose content equals the target's. History is never rewritten: the
// target row stays untouched and current_version strictly increases.
func (s *Store) RollbackArticle(ctx context.Context, id string, targetVersion int, operator, comment string) (*types.Article, error) {
	if targetVersion <= 0 {
		return nil, fmt.Errorf("%w: rollback target version must be positive", ErrInvalidInput)
	}
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT current_version FROM articles WHERE id = ?`, id,
	).Scan(&currentVersion)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading article %s: %w", id, err)
	}

	var content string
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM article_versions WHERE article_id = ? AND version = ?`, id, targetVersion,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s has no version %d", ErrNotFound, id, targetVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w", targetVersion, err)
	}

	next := currentVersion + 1
	note := fmt.Sprintf("rollback to version %d", targetVersion)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO article_versions (article_id, version, content, change_note, source_type, source_ref, author, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, next, content, note, string(types.SourceRollback), fmt.Sprintf("v%d", targetVersion), operator, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting rollback version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET current_version = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		next, operator, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating article: %w", err)
	}

	if err := insertReview(ctx, tx, id, next, types.ActionRollback, comment, operator, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rollback: %w", err)
	}

	return s.GetArticle(ctx, id)
}

// needsReview reports whether a published article has sat unchanged for
// longer than the review window. Advisory only; it never transitions
// state.
func (s *Store) needsReview(a *types.Article) bool {
	if a.Status != types.StatusPublished {
		return false
	}
	return time.Since(a.UpdatedAt) > s.reviewWindow
}

// PendingReviews returns articles awaiting editorial attention: drafts
// and articles under review first (most recently updated leading), then
// published articles past the review window, capped at limit.
func (s *Store) PendingReviews(ctx context.Context, limit int) ([]types.Article, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.summary, a.category, a.severity, a.status,
			a.current_version, a.created_by, a.updated_by, a.created_at, a.updated_at
		 FROM articles a WHERE a.status IN (?, ?) ORDER BY a.updated_at DESC`,
		string(types.StatusDraft), string(types.StatusReviewing))
	if err != nil {
		return nil, fmt.Errorf("listing pending articles: %w", err)
	}
	defer rows.Close()

	var pending []types.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(pending) < limit {
		stale, err := s.stalePublished(ctx)
		if err != nil {
			return nil, err
		}
		pending = append(pending, stale...)
	}

	if len(pending) > limit {
		pending = pending[:limit]
	}

	for i := range pending {
		if pending[i].Tags, err = s.articleTags(ctx, pending[i].ID); err != nil {
			return nil, err
		}
		pending[i].NeedsReview = s.needsReview(&pending[i])
	}
	return pending, nil
}

func (s *Store) stalePublished(ctx context.Context) ([]types.Article, error) {
	cutoff := formatTime(time.Now().Add(-s.reviewWindow))
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.summary, a.category, a.severity, a.status,
			a.current_version, a.created_by, a.updated_by, a.created_at, a.updated_at
		 FROM articles a WHERE a.status = ? AND a.updated_at < ? ORDER BY a.updated_at ASC`,
		string(types.StatusPublished), cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale published articles: %w", err)
	}
	defer rows.Close()

	var stale []types.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, *a)
	}
	return stale, rows.Err()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// KnowledgeBaseConfig holds settings for the knowledge base core.
type KnowledgeBaseConfig struct {
	// DataDir is the directory holding the embedded database file
	// (kb.db). Created on open when missing.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ReviewWindow is how long a published article may sit unchanged
	// before it is flagged as needing review (default 90 days).
	// Overridable through OPS_CONSOLE_REVIEW_WINDOW_DAYS.
	ReviewWindow time.Duration `json:"review_window" yaml:"review_window"`

	// PageSize is the default list page size (default 20). List calls
	// are clamped to a hard maximum regardless of the requested size.
	PageSize int `json:"page_size" yaml:"page_size"`
}

// DefaultReviewWindow is the review-staleness window applied when the
// configuration leaves ReviewWindow unset.
const DefaultReviewWindow = 90 * 24 * time.Hour

// ServerConfig holds settings for the console-facing HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8085").
	Addr string `json:"addr" yaml:"addr"`

	// AuthToken, when non-empty, is required as a bearer token on
	// mutating endpoints. Loaded from .secrets/api-token.
	AuthToken string `json:"-" yaml:"-"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data types of the operational
// knowledge base: articles, their immutable version history, the
// review audit trail, and external reference keys.
package types

import "time"

// ArticleStatus is the editorial lifecycle state of an article.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusReviewing ArticleStatus = "reviewing"
	StatusPublished ArticleStatus = "published"
	StatusArchived  ArticleStatus = "archived"
)

// Severity grades the operational impact an article covers.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// NormalizeSeverity returns s when it is a known grade, medium otherwise.
func NormalizeSeverity(s Severity) Severity {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return s
	}
	return SeverityMedium
}

// ReviewAction names an entry in the review audit trail. The lifecycle
// actions (submit, approve, reject, archive) are driven through
// ApplyAction; create, update, and rollback records are written by the
// operations themselves so the trail reconstructs the full history.
type ReviewAction string

const (
	ActionCreate   ReviewAction = "create"
	ActionUpdate   ReviewAction = "update"
	ActionSubmit   ReviewAction = "submit"
	ActionApprove  ReviewAction = "approve"
	ActionReject   ReviewAction = "reject"
	ActionArchive  ReviewAction = "archive"
	ActionRollback ReviewAction = "rollback"
)

// SourceType records how a version's content came to exist.
type SourceType string

const (
	SourceManual      SourceType = "manual"
	SourceImport      SourceType = "import"
	SourceAIGenerated SourceType = "ai-generated"
	SourceRollback    SourceType = "rollback"
)

// Article is a versioned knowledge entry. CurrentVersion always equals
// the highest version number stored for the article; archival is a
// status change, never a row deletion.
type Article struct {
	// ID is a stable opaque identifier (timestamp plus random suffix).
	ID string `json:"id" yaml:"id"`

	// Title is the display title. Never empty.
	Title string `json:"title" yaml:"title"`

	// Summary is a short abstract used in listings and answers.
	Summary string `json:"summary" yaml:"summary"`

	// Category groups articles ("general" when unspecified).
	Category string `json:"category" yaml:"category"`

	// Severity grades the covered incident class: low, medium, high.
	Severity Severity `json:"severity" yaml:"severity"`

	// Status is the editorial lifecycle state.
	Status ArticleStatus `json:"status" yaml:"status"`

	// CurrentVersion points at the newest version row, starting at 1.
	CurrentVersion int `json:"current_version" yaml:"current_version"`

	// CreatedBy and UpdatedBy identify the operators of the first and
	// latest write.
	CreatedBy string `json:"created_by" yaml:"created_by"`
	UpdatedBy string `json:"updated_by" yaml:"updated_by"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// Tags are the lower-cased labels linked to the article.
	Tags []string `json:"tags" yaml:"tags"`

	// NeedsReview is derived, not stored: a published article whose
	// last update is older than the review window.
	NeedsReview bool `json:"needs_review" yaml:"needs_review"`

	// Versions, Reviews, and Refs are attached on full hydration
	// (GetArticle); list and search results leave them nil.
	Versions []ArticleVersion `json:"versions,omitempty" yaml:"versions,omitempty"`
	Reviews  []ReviewRecord   `json:"reviews,omitempty" yaml:"reviews,omitempty"`
	Refs     []ArticleRef     `json:"refs,omitempty" yaml:"refs,omitempty"`
}

// ArticleVersion is an immutable content snapshot. Version rows are
// append-only; no operation updates or deletes an existing row.
type ArticleVersion struct {
	ArticleID string `json:"article_id" yaml:"article_id"`

	// Version is unique per article, starting at 1, strictly increasing.
	Version int `json:"version" yaml:"version"`

	// Content is the full Markdown body of this snapshot.
	Content string `json:"content" yaml:"content"`

	// ChangeNote describes what changed relative to the prior version.
	ChangeNote string `json:"change_note" yaml:"change_note"`

	// SourceType records the content origin: manual, import,
	// ai-generated, or rollback.
	SourceType SourceType `json:"source_type" yaml:"source_type"`

	// SourceRef optionally points at the origin, e.g. an import path.
	SourceRef string `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`

	Author    string    `json:"author" yaml:"author"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ReviewRecord is one append-only audit-trail entry. Every
// lifecycle-affecting call writes exactly one record, including pure
// writes (create, update).
type ReviewRecord struct {
	ArticleID string       `json:"article_id" yaml:"article_id"`
	Version   int          `json:"version" yaml:"version"`
	Action    ReviewAction `json:"action" yaml:"action"`
	Comment   string       `json:"comment,omitempty" yaml:"comment,omitempty"`
	Operator  string       `json:"operator" yaml:"operator"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
}

// ArticleRef keys an article to an external origin. The (RefType,
// RefPath) pair makes directory imports idempotent across runs.
type ArticleRef struct {
	ArticleID string    `json:"article_id" yaml:"article_id"`
	RefType   string    `json:"ref_type" yaml:"ref_type"`
	RefPath   string    `json:"ref_path" yaml:"ref_path"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package api publishes the knowledge base operations as the JSON API
// the web console renders from. The console holds no state of its own;
// everything it shows comes from these endpoints.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/ops-console/internal/kb"
	"github.com/pdiddy/ops-console/pkg/types"
)

// Server wires the knowledge base store into HTTP handlers.
type Server struct {
	store  *kb.Store
	token  string
	engine *gin.Engine
}

// New builds the router. When token is non-empty, mutating endpoints
// require it as a bearer token.
func New(store *kb.Store, cfg types.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{store: store, token: cfg.AuthToken, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	api.GET("/articles", s.handleList)
	api.GET("/articles/:id", s.handleGet)
	api.GET("/reviews/pending", s.handlePending)
	api.GET("/search", s.handleSearch)
	api.GET("/ask", s.handleAsk)
	api.GET("/recommendations", s.handleRecommendations)
	api.GET("/quality", s.handleQuality)

	mutating := api.Group("", s.requireToken())
	mutating.POST("/articles", s.handleCreate)
	mutating.PUT("/articles/:id", s.handleUpdate)
	mutating.POST("/articles/:id/action", s.handleAction)
	mutating.POST("/articles/:id/rollback", s.handleRollback)
	mutating.POST("/import", s.handleImport)
}

// requireToken rejects mutating requests without the configured bearer
// token. A server with no token configured accepts everything.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Next()
	}
}

// abortError maps the service sentinels onto status codes: invalid
// input is client-correctable (400), unknown ids are 404, everything
// else is a storage failure (500).
func abortError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, kb.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, kb.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// articleRequest is the JSON body for create and update.
type articleRequest struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Category   string   `json:"category"`
	Severity   string   `json:"severity"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Actor      string   `json:"actor"`
	ChangeNote string   `json:"change_note"`
	SourceType string   `json:"source_type"`
	SourceRef  string   `json:"source_ref"`
	RefTitle   string   `json:"ref_title"`
}

func (r articleRequest) input() kb.ArticleInput {
	return kb.ArticleInput{
		Title:      r.Title,
		Summary:    r.Summary,
		Category:   r.Category,
		Severity:   types.Severity(r.Severity),
		Content:    r.Content,
		Tags:       r.Tags,
		Actor:      r.Actor,
		ChangeNote: r.ChangeNote,
		SourceType: types.SourceType(r.SourceType),
		SourceRef:  r.SourceRef,
		RefTitle:   r.RefTitle,
	}
}

func (s *Server) handleCreate(c *gin.Context) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.store.CreateArticle(c.Request.Context(), req.input())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, article)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.store.UpdateArticle(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleGet(c *gin.Context) {
	article, err := s.store.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleList(c *gin.Context) {
	q := kb.ListQuery{
		Query:           c.Query("q"),
		Status:          types.ArticleStatus(c.Query("status")),
		Severity:        types.Severity(c.Query("severity")),
		Tag:             c.Query("tag"),
		Page:            intQuery(c, "page", 0),
		PageSize:        intQuery(c, "page_size", 0),
		IncludeArchived: boolQuery(c, "include_archived"),
	}
	articles, total, err := s.store.ListArticles(c.Request.Context(), q)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "total": total})
}

func (s *Server) handlePending(c *gin.Context) {
	articles, err := s.store.PendingReviews(c.Request.Context(), intQuery(c, "limit", 0))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

type actionRequest struct {
	Action   string `json:"action"`
	Operator string `json:"operator"`
	Comment  string `json:"comment"`
}

func (s *Server) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.store.ApplyAction(c.Request.Context(), c.Param("id"),
		types.ReviewAction(req.Action), req.Operator, req.Comment)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

type rollbackRequest struct {
	Version  int    `json:"version"`
	Operator string `json:"operator"`
	Comment  string `json:"comment"`
}

func (s *Server) handleRollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.store.RollbackArticle(c.Request.Context(), c.Param("id"),
		req.Version, req.Operator, req.Comment)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleSearch(c *gin.Context) {
	results, err := s.store.Search(c.Request.Context(), c.Query("q"),
		intQuery(c, "limit", 0), boolQuery(c, "include_archived"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": results})
}

func (s *Server) handleAsk(c *gin.Context) {
	answer, err := s.store.Ask(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 0))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (s *Server) handleRecommendations(c *gin.Context) {
	results, err := s.store.Recommendations(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 0))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": results})
}

type importRequest struct {
	Path     string `json:"path"`
	Operator string `json:"operator"`
}

func (s *Server) handleImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Progress output is dropped on the HTTP path; the summary
	// response carries the counts.
	summary, err := s.store.ImportDocs(c.Request.Context(), req.Path, req.Operator, io.Discard)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleQuality(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Metrics().Snapshot())
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func boolQuery(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

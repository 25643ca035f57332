// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/ops-console/pkg/types"
)

const defaultSearchLimit = 10

// Field weights for the token-scoring fallback. A token that hits
// anything at all earns one extra point.
const (
	scoreTitle   = 8
	scoreSummary = 5
	scoreTag     = 4
	scoreContent = 2
	scoreAnyHit  = 1
)

// Search runs the two-tier retrieval. Tier 1 is the structured
// substring query; only when it returns nothing does tier 2 tokenize
// the query and score every eligible candidate by weighted field hits.
// An empty query yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, limit int, includeArchived bool) ([]types.Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	articles, _, err := s.ListArticles(ctx, ListQuery{
		Query:           query,
		PageSize:        limit,
		IncludeArchived: includeArchived,
	})
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		articles, err = s.fallbackSearch(ctx, query, limit, includeArchived)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.RecordSearch(len(articles) > 0)
	return articles, nil
}

// fallbackSearch scores every candidate matching the archival filter
// against the tokenized query and returns the top limit by descending
// score. The candidate set is the whole article store, paged through in
// maximum-size batches. Zero-scoring candidates are dropped; ties keep
// list order (most recently updated first).
func (s *Store) fallbackSearch(ctx context.Context, query string, limit int, includeArchived bool) ([]types.Article, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var candidates []types.Article
	for page := 1; ; page++ {
		batch, total, err := s.ListArticles(ctx, ListQuery{
			Page:            page,
			PageSize:        maxPageSize,
			IncludeArchived: includeArchived,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
		if len(candidates) >= total || len(batch) == 0 {
			break
		}
	}

	type scored struct {
		article types.Article
		score   int
	}
	var hits []scored
	for _, a := range candidates {
		content, err := s.currentContent(ctx, a.ID, a.CurrentVersion)
		if err != nil {
			return nil, err
		}
		if sc := scoreArticle(&a, content, tokens); sc > 0 {
			hits = append(hits, scored{article: a, score: sc})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]types.Article, len(hits))
	for i, h := range hits {
		results[i] = h.article
	}
	return results, nil
}

// scoreArticle sums the per-token field weights: title 8, summary 5,
// any tag 4, content 2, plus 1 for each token that hit anything.
func scoreArticle(a *types.Article, content string, tokens []string) int {
	title := strings.ToLower(a.Title)
	summary := strings.ToLower(a.Summary)
	body := strings.ToLower(content)

	score := 0
	for _, token := range tokens {
		hit := false
		if strings.Contains(title, token) {
			score += scoreTitle
			hit = true
		}
		if strings.Contains(summary, token) {
			score += scoreSummary
			hit = true
		}
		for _, tag := range a.Tags {
			if strings.Contains(tag, token) {
				score += scoreTag
				hit = true
				break
			}
		}
		if strings.Contains(body, token) {
			score += scoreContent
			hit = true
		}
		if hit {
			score += scoreAnyHit
		}
	}
	return score
}

// tokenize splits a query into lower-cased word tokens (ASCII words of
// at least 3 runes, non-ASCII words of at least 2), 2- and 3-rune
// sliding windows over non-ASCII runs for scripts without whitespace
// word boundaries, and the alphanumeric compaction of the whole query
// when it is at least 4 runes long.
func tokenize(query string) []string {
	query = strings.ToLower(query)

	seen := make(map[string]bool)
	var tokens []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}

	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		minLen := 3
		if !isASCII(w) {
			minLen = 2
		}
		if utf8.RuneCountInString(w) >= minLen {
			add(w)
		}
	}

	for _, run := range nonASCIIRuns(query) {
		for _, n := range []int{2, 3} {
			if len(run) < n {
				continue
			}
			for i := 0; i+n <= len(run); i++ {
				add(string(run[i : i+n]))
			}
		}
	}

	var compact strings.Builder
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			compact.WriteRune(r)
		}
	}
	if utf8.RuneCountInString(compact.String()) >= 4 {
		add(compact.String())
	}

	return tokens
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// nonASCIIRuns returns the maximal consecutive runs of non-ASCII
// letters and digits in s.
func nonASCIIRuns(s string) [][]rune {
	var runs [][]rune
	var current []rune
	for _, r := range s {
		if r > unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

// Citation points an answer at a supporting article. Downstream
// consumers rely on this list for the answer-citation-ratio gate.
type Citation struct {
	ArticleID string `json:"article_id" yaml:"article_id"`
	Title     string `json:"title" yaml:"title"`
	Version   int    `json:"version" yaml:"version"`
}

// Answer is the result of an Ask call: a templated answer composed from
// retrieved snippets, never generated text.
type Answer struct {
	Answer     string     `json:"answer" yaml:"answer"`
	Citations  []Citation `json:"citations" yaml:"citations"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
}

const (
	confidenceNoHit = 0.2
	confidenceHit   = 0.75

	answerNotFound  = "No matching knowledge base article was found for this question."
	snippetFallback = "See the cited article for details."

	snippetLimit = 180
)

// Ask retrieves supporting articles (archived excluded) and composes a
// templated answer citing every hit. Zero hits yield the fixed
// low-confidence answer with no citations and no error.
func (s *Store) Ask(ctx context.Context, question string, limit int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	hits, err := s.Search(ctx, question, limit, false)
	if err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		s.metrics.RecordAsk(false)
		return &Answer{
			Answer:     answerNotFound,
			Citations:  []Citation{},
			Confidence: confidenceNoHit,
		}, nil
	}

	top := hits[0]
	snippet := top.Summary
	if snippet == "" {
		content, err := s.currentContent(ctx, top.ID, top.CurrentVersion)
		if err != nil {
			return nil, err
		}
		snippet = firstBodyLine(content, snippetLimit)
	}
	if snippet == "" {
		snippet = snippetFallback
	}

	citations := make([]Citation, len(hits))
	for i, h := range hits {
		citations[i] = Citation{ArticleID: h.ID, Title: h.Title, Version: h.CurrentVersion}
	}

	s.metrics.RecordAsk(true)
	return &Answer{
		Answer:     fmt.Sprintf("Based on article «%s»: %s", top.Title, snippet),
		Citations:  citations,
		Confidence: confidenceHit,
	}, nil
}

// Recommendations retrieves non-archived articles related to the query.
// Same mechanics as Search today; kept as a distinct operation because
// its caller-facing semantics may diverge.
func (s *Store) Recommendations(ctx context.Context, query string, limit int) ([]types.Article, error) {
	return s.Search(ctx, query, limit, false)
}

// firstBodyLine returns the first non-empty, non-heading Markdown line,
// truncated to max runes.
func firstBodyLine(content string, max int) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return truncateRunes(trimmed, max)
	}
	return ""
}

// truncateRunes shortens s to at most max runes, ellipsis included.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

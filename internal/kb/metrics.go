// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"sort"
	"sync"
	"time"
)

// Quality gates consumed by downstream observability and reporting.
// The core exposes the measured values; it never enforces the
// thresholds inline.
const (
	// MinSearchHitRatio is the minimum acceptable share of searches
	// returning at least one article.
	MinSearchHitRatio = 0.70

	// MinAskCitationRatio is the minimum acceptable share of answers
	// carrying at least one citation.
	MinAskCitationRatio = 0.95

	// MaxReviewLatencyP95 is the maximum acceptable 95th-percentile
	// latency of review lifecycle actions.
	MaxReviewLatencyP95 = 800 * time.Millisecond
)

// Metrics accumulates the service-level measurements the quality gates
// compare against. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	searches   int
	searchHits int

	asks     int
	askCited int

	reviewLatencies []time.Duration
}

// NewMetrics returns an empty recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSearch counts one search and whether it returned any result.
func (m *Metrics) RecordSearch(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if hit {
		m.searchHits++
	}
}

// RecordAsk counts one answered question and whether the answer carried
// citations.
func (m *Metrics) RecordAsk(cited bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asks++
	if cited {
		m.askCited++
	}
}

// RecordReviewLatency records the wall time of one lifecycle action.
func (m *Metrics) RecordReviewLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewLatencies = append(m.reviewLatencies, d)
}

// QualityReport is a point-in-time snapshot of the measured metrics
// next to their gate thresholds.
type QualityReport struct {
	Searches         int           `json:"searches" yaml:"searches"`
	SearchHitRatio   float64       `json:"search_hit_ratio" yaml:"search_hit_ratio"`
	Asks             int           `json:"asks" yaml:"asks"`
	AskCitationRatio float64       `json:"ask_citation_ratio" yaml:"ask_citation_ratio"`
	ReviewActions    int           `json:"review_actions" yaml:"review_actions"`
	ReviewLatencyP95 time.Duration `json:"review_latency_p95" yaml:"review_latency_p95"`

	MinSearchHitRatio   float64       `json:"min_search_hit_ratio" yaml:"min_search_hit_ratio"`
	MinAskCitationRatio float64       `json:"min_ask_citation_ratio" yaml:"min_ask_citation_ratio"`
	MaxReviewLatencyP95 time.Duration `json:"max_review_latency_p95" yaml:"max_review_latency_p95"`
}

// Snapshot returns the current measurements. Ratios are zero until the
// corresponding operation has run at least once.
func (m *Metrics) Snapshot() QualityReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := QualityReport{
		Searches:            m.searches,
		Asks:                m.asks,
		ReviewActions:       len(m.reviewLatencies),
		MinSearchHitRatio:   MinSearchHitRatio,
		MinAskCitationRatio: MinAskCitationRatio,
		MaxReviewLatencyP95: MaxReviewLatencyP95,
	}
	if m.searches > 0 {
		report.SearchHitRatio = float64(m.searchHits) / float64(m.searches)
	}
	if m.asks > 0 {
		report.AskCitationRatio = float64(m.askCited) / float64(m.asks)
	}
	report.ReviewLatencyP95 = percentile95(m.reviewLatencies)
	return report
}

// percentile95 returns the nearest-rank 95th percentile of ds, or 0 for
// an empty sample.
func percentile95(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (95*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

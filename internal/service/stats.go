package service

import "sync"

// StatsSnapshot is a point-in-time copy of the running counters.
type StatsSnapshot struct {
	SearchTotal   int64   `json:"search_total"`
	SearchErr     int64   `json:"search_err"`
	FeedbackTotal int64   `json:"feedback_total"`
	IndexTotal    int64   `json:"index_total"`
	AvgSearchMs   float64 `json:"avg_search_ms"`
}

// StatsTracker holds process-wide counters and an EMA of search latency,
// all updated under a single mutex.
type StatsTracker struct {
	mu            sync.Mutex
	searchTotal   int64
	searchErr     int64
	feedbackTotal int64
	indexTotal    int64
	avgSearchMs   float64
}

// NewStatsTracker creates an empty tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// RecordSearch bumps the search counter and updates the latency EMA:
// avg ← 0.99*avg + 0.01*durationMs.
func (s *StatsTracker) RecordSearch(durationMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchTotal++
	s.avgSearchMs = 0.99*s.avgSearchMs + 0.01*durationMs
}

// RecordSearchErr bumps the search error counter.
func (s *StatsTracker) RecordSearchErr() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchErr++
}

// RecordFeedback bumps the feedback counter.
func (s *StatsTracker) RecordFeedback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackTotal++
}

// RecordIndex bumps the index counter.
func (s *StatsTracker) RecordIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexTotal++
}

// Snapshot returns a copy of the current counters.
func (s *StatsTracker) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		SearchTotal:   s.searchTotal,
		SearchErr:     s.searchErr,
		FeedbackTotal: s.feedbackTotal,
		IndexTotal:    s.indexTotal,
		AvgSearchMs:   s.avgSearchMs,
	}
}

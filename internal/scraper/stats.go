package scraper

import (
	"sync"
	"time"
)

const (
	OutcomeRecorded = "recorded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Snapshot is a point-in-time copy of run counters. Entries counts visited
// products, recorded or failed; entries without a product link only count
// as skipped.
type Snapshot struct {
	Keyword     string    `json:"keyword"`
	Pages       int       `json:"pages"`
	Entries     int       `json:"entries"`
	Records     int       `json:"records"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Running     bool      `json:"running"`
	Interrupted bool      `json:"interrupted"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Stats counts run progress. The walker writes, the status server reads.
type Stats struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *Stats) start(keyword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{Keyword: keyword, Running: true, StartedAt: time.Now()}
}

func (s *Stats) addPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Pages++
}

func (s *Stats) addEntry(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch outcome {
	case OutcomeRecorded:
		s.snap.Entries++
		s.snap.Records++
	case OutcomeSkipped:
		s.snap.Skipped++
	case OutcomeFailed:
		s.snap.Entries++
		s.snap.Failed++
	}
}

func (s *Stats) finish(interrupted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = false
	s.snap.Interrupted = interrupted
	s.snap.FinishedAt = time.Now()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

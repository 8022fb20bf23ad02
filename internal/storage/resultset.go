package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

// Hook is notified of every appended record. Hook errors are logged and
// never stop the run.
type Hook func(ctx context.Context, rec models.ProductRecord) error

// ResultSet is the ordered, append-only record set of a run. Each append
// rewrites the whole set through the sink so that an interrupted run loses
// at most the record in progress.
type ResultSet struct {
	mu      sync.Mutex
	records []models.ProductRecord
	sink    Sink
	hooks   []Hook
	logger  *slog.Logger
}

func NewResultSet(sink Sink, logger *slog.Logger, hooks ...Hook) *ResultSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultSet{
		sink:   sink,
		hooks:  hooks,
		logger: logger.With("component", "result-set"),
	}
}

// Append adds rec and persists the full set. The record is kept even when
// persisting fails; the next append or Flush writes it.
func (s *ResultSet) Append(ctx context.Context, rec models.ProductRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	err := s.persistLocked()
	s.mu.Unlock()

	for _, hook := range s.hooks {
		if herr := hook(ctx, rec); herr != nil {
			s.logger.Warn("record hook failed", "asin", rec.ASIN, "error", herr)
		}
	}
	return err
}

// Flush persists the full set once more.
func (s *ResultSet) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *ResultSet) persistLocked() error {
	if err := s.sink.Persist(s.records); err != nil {
		return err
	}
	s.logger.Debug("results persisted", "records", len(s.records))
	return nil
}

func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a copy of the set in append order.
func (s *ResultSet) Records() []models.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProductRecord, len(s.records))
	copy(out, s.records)
	return out
}

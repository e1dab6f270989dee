// Package memory keeps emitted records in process, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Sink stores records in append order.
type Sink struct {
	mu      sync.Mutex
	records []crawler.EmittedRecord
	// FailAfter makes Append fail once this many records are stored; zero disables it.
	FailAfter int
	closed    bool
}

// New creates an empty in-memory sink.
func New() *Sink {
	return &Sink{}
}

// Append stores a copy of the record.
func (s *Sink) Append(_ context.Context, record crawler.EmittedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory sink is closed")
	}
	if s.FailAfter > 0 && len(s.records) >= s.FailAfter {
		return fmt.Errorf("memory sink full after %d records", s.FailAfter)
	}
	s.records = append(s.records, record)
	return nil
}

// Close marks the sink closed.
func (s *Sink) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Records returns a snapshot of the stored records.
func (s *Sink) Records() []crawler.EmittedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.EmittedRecord(nil), s.records...)
}

// Len reports how many records were stored.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Package multi fans emitted records out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Sink writes every record to each child in order and stops at the first failure.
type Sink struct {
	sinks []crawler.Sink
}

// New wraps the given sinks; nil entries are skipped.
func New(sinks ...crawler.Sink) *Sink {
	out := make([]crawler.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

// Len reports the number of child sinks.
func (m *Sink) Len() int {
	return len(m.sinks)
}

// Append delivers the record to every child sink.
func (m *Sink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	for i, s := range m.sinks {
		if err := s.Append(ctx, record); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every child and joins their errors.
func (m *Sink) Close(ctx context.Context) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

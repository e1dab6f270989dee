// Package jsonl implements an append-only JSON-lines record sink.
package jsonl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink"
)

// Config captures the parameters for the file sink.
type Config struct {
	Path   string
	Logger *zap.Logger
}

// Sink appends one JSON document per line and syncs after each record.
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	written int
	logger  *zap.Logger
}

// New opens (or creates) the output file in append mode.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", cfg.Path, err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", cfg.Path, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{file: f, path: cfg.Path, logger: logger}, nil
}

// Append writes the record as a single line.
func (s *Sink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	data, err := sink.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("jsonl sink %s is closed", s.path)
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write record %s: %w", record.ExternalID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	s.written++
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *Sink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.logger.Info("jsonl sink closed", zap.String("path", s.path), zap.Int("records", s.written))
	if err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

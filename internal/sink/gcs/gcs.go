// Package gcs writes each emitted record as a JSON object in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink"
)

// Config captures the destination bucket layout.
type Config struct {
	Bucket string
	Prefix string
	// OwnsClient closes the storage client when the sink is closed.
	OwnsClient bool
	Logger     *zap.Logger
}

// Sink uploads one object per record under <prefix>/<run id>/<external id>.json.
type Sink struct {
	client     *storage.Client
	bucket     string
	prefix     string
	ownsClient bool
	logger     *zap.Logger
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		ownsClient: cfg.OwnsClient,
		logger:     logger,
	}, nil
}

// ObjectName returns the object path used for a record.
func (s *Sink) ObjectName(record crawler.EmittedRecord) string {
	name := url.PathEscape(record.ExternalID) + ".json"
	run := record.RunID
	if run == "" {
		run = "unknown-run"
	}
	return path.Join(s.prefix, run, name)
}

// Append uploads the record as a standalone JSON document.
func (s *Sink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	data, err := sink.Marshal(record)
	if err != nil {
		return err
	}
	name := s.ObjectName(record)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.ChunkSize = 0
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", name, err)
	}
	s.logger.Debug("record uploaded", zap.String("object", fmt.Sprintf("gs://%s/%s", s.bucket, name)))
	return nil
}

// Close releases the client when the sink owns it.
func (s *Sink) Close(_ context.Context) error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

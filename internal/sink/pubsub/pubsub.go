// Package pubsub publishes each emitted record to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink"
)

// Config describes the destination topic.
type Config struct {
	ProjectID string
	TopicID   string
	Logger    *zap.Logger
}

// Sink publishes one message per record and waits for the server ack.
type Sink struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	ownsClient bool
	logger     *zap.Logger
}

// New dials Pub/Sub with default credentials.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic id are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	s := NewWithTopic(client.Topic(cfg.TopicID), cfg.Logger)
	s.client = client
	s.ownsClient = true
	return s, nil
}

// NewWithTopic wraps an existing topic handle (primarily for testing).
func NewWithTopic(topic *pubsub.Topic, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{topic: topic, logger: logger}
}

// Append publishes the record as JSON with routing attributes.
func (s *Sink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	if s.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := sink.Marshal(record)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"external_id": record.ExternalID,
			"run_id":      record.RunID,
			"strategy":    record.Strategy,
		},
	}
	id, err := s.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish record %s: %w", record.ExternalID, err)
	}
	s.logger.Debug("record published", zap.String("message_id", id), zap.String("external_id", record.ExternalID))
	return nil
}

// Close flushes outstanding publishes.
func (s *Sink) Close(_ context.Context) error {
	if s.topic != nil {
		s.topic.Stop()
	}
	if s.ownsClient && s.client != nil {
		if err := s.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

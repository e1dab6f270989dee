package cmd

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/config"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	gcssink "github.com/JakeFAU/realtime-job-crawler/internal/sink/gcs"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink/jsonl"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink/multi"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/realtime-job-crawler/internal/sink/pubsub"
)

// buildSink opens every configured sink and fans records out to all of them.
// Sinks opened before a failure are closed again.
func buildSink(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (crawler.Sink, error) {
	var opened []crawler.Sink
	fail := func(err error) (crawler.Sink, error) {
		closeErr := multi.New(opened...).Close(context.WithoutCancel(ctx))
		return nil, errors.Join(err, closeErr)
	}

	if cfg.JSONL.Path != "" {
		s, err := jsonl.New(jsonl.Config{Path: cfg.JSONL.Path, Logger: logger})
		if err != nil {
			return fail(fmt.Errorf("init jsonl sink: %w", err))
		}
		opened = append(opened, s)
	}
	if cfg.Postgres.DSN != "" {
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			CreateTable:     cfg.Postgres.CreateTable,
			Logger:          logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init postgres sink: %w", err))
		}
		opened = append(opened, s)
	}
	if cfg.GCS.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("init storage client: %w", err))
		}
		s, err := gcssink.New(client, gcssink.Config{
			Bucket:     cfg.GCS.Bucket,
			Prefix:     cfg.GCS.Prefix,
			OwnsClient: true,
			Logger:     logger,
		})
		if err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("init gcs sink: %w", err))
		}
		opened = append(opened, s)
	}
	if cfg.PubSub.TopicID != "" {
		s, err := pubsubsink.New(ctx, pubsubsink.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicID:   cfg.PubSub.TopicID,
			Logger:    logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init pubsub sink: %w", err))
		}
		opened = append(opened, s)
	}

	if len(opened) == 0 {
		return nil, crawler.ConfigError("no sink configured")
	}
	if len(opened) == 1 {
		return opened[0], nil
	}
	return multi.New(opened...), nil
}

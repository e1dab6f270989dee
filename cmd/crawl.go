package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/config"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/realtime-job-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-job-crawler/internal/hash/sha256"
	"github.com/JakeFAU/realtime-job-crawler/internal/logging"
	"github.com/JakeFAU/realtime-job-crawler/internal/orchestrator"
	"github.com/JakeFAU/realtime-job-crawler/internal/server"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs a single bounded crawl.
func newCrawlCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls search results until the quota or the page ceiling is reached",
		Example: `  jobcrawler crawl --keyword nurse --location Austin --quota 50
  jobcrawler crawl --config crawl.yaml --date-filter 24h --output jobs.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, v, *cfgFile)
		},
	}

	d := crawler.DefaultRunConfig()
	f := cmd.Flags()
	f.String("keyword", "", "search keyword (required unless --seed-url is set)")
	f.String("location", "", "search location")
	f.String("date-filter", string(d.DateFilter), "posting age: anytime, 24h, 7d or 30d")
	f.Int("quota", d.Quota, "records to emit; -1 disables the cap")
	f.Int("pages", d.PageCeiling, "maximum search-result pages to fetch")
	f.Int("max-retries", d.MaxRetries, "retries per task after the first attempt")
	f.Int("concurrency", d.Concurrency, "parallel fetch workers (1-10)")
	f.Duration("request-delay", d.RequestDelay, "base pause before each request")
	f.Int("rpm", d.RequestsPerMinute, "global requests per minute; 0 disables the limiter")
	f.Bool("fetch-details", d.FetchDetails, "fetch posting pages for cards without a description")
	f.StringSlice("seed-url", nil, "extra search-result URLs to paginate")
	f.StringSlice("proxy", nil, "proxy URLs assigned round-robin to identities")
	f.String("output", "data/jobs.jsonl", "JSONL output file; empty disables it")
	f.String("postgres-dsn", "", "Postgres DSN for the job_postings table")
	f.String("gcs-bucket", "", "Cloud Storage bucket receiving one object per record")
	f.String("pubsub-project", "", "Pub/Sub project id")
	f.String("pubsub-topic", "", "Pub/Sub topic receiving one message per record")
	f.String("metrics-addr", "", "listen address for /metrics, /healthz and /v1/run")
	cobra.CheckErr(bindFlags(v, f, map[string]string{
		"keyword":        "run.keyword",
		"location":       "run.location",
		"date-filter":    "run.date_filter",
		"quota":          "run.quota",
		"pages":          "run.pages",
		"max-retries":    "run.max_retries",
		"concurrency":    "run.concurrency",
		"request-delay":  "run.request_delay",
		"rpm":            "run.requests_per_minute",
		"fetch-details":  "run.fetch_details",
		"seed-url":       "run.seed_urls",
		"proxy":          "identity.proxies",
		"output":         "sink.jsonl.path",
		"postgres-dsn":   "sink.postgres.dsn",
		"gcs-bucket":     "sink.gcs.bucket",
		"pubsub-project": "sink.pubsub.project_id",
		"pubsub-topic":   "sink.pubsub.topic_id",
		"metrics-addr":   "metrics.addr",
	}))
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, v *viper.Viper, cfgFile string) (err error) {
	cfg, err := config.FromViper(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	runCfg, err := cfg.RunConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		err = errors.Join(err, logging.Sync(logger))
	}()
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	ctx := cmd.Context()
	sink, err := buildSink(ctx, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("failed to close sink", zap.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}()

	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout: runCfg.RequestTimeout,
		Logger:  logger,
	})
	orch, err := orchestrator.New(runCfg, orchestrator.Deps{
		Fetcher: fetcher,
		Sink:    sink,
		Hasher:  sha256.New(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	stopServer := startServer(ctx, cfg.Metrics.Addr, orch.Progress, logger)
	defer stopServer()

	summary, runErr := orch.Run(ctx)
	if perr := printSummary(cmd.OutOrStdout(), summary); perr != nil {
		logger.Warn("failed to print summary", zap.Error(perr))
	}
	if runErr != nil {
		return fmt.Errorf("run crawl: %w", runErr)
	}
	return nil
}

// startServer serves metrics in the background when addr is set. The returned
// func stops the server and waits for it.
func startServer(ctx context.Context, addr string, progress server.ProgressFunc, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.New(progress, logger).Serve(ctx, addr); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printSummary(w io.Writer, s crawler.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

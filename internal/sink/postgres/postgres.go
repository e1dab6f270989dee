// Package postgres provides a Postgres-backed record sink.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

const defaultTable = "job_postings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for posting rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTable issues CREATE TABLE IF NOT EXISTS on startup.
	CreateTable bool
	Logger      *zap.Logger
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink upserts emitted records keyed by external id.
type Sink struct {
	pool   execCloser
	table  string
	logger *zap.Logger
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, cfg.Logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.CreateTable {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string, logger *zap.Logger) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: pool, table: table, logger: logger}, nil
}

// EnsureSchema creates the postings table when it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	external_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	title TEXT NOT NULL,
	company TEXT,
	location TEXT,
	date_posted TEXT,
	salary TEXT,
	employment_type TEXT,
	description_text TEXT,
	description_html TEXT,
	source_url TEXT,
	extraction_strategy TEXT NOT NULL,
	provenance JSONB NOT NULL,
	emitted_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Append upserts the record; a later run refreshes an existing row.
func (s *Sink) Append(ctx context.Context, record crawler.EmittedRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	if record.ExternalID == "" {
		return fmt.Errorf("record external id is required")
	}
	provenance, err := json.Marshal(record.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	external_id,
	run_id,
	title,
	company,
	location,
	date_posted,
	salary,
	employment_type,
	description_text,
	description_html,
	source_url,
	extraction_strategy,
	provenance,
	emitted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (external_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	date_posted = EXCLUDED.date_posted,
	salary = EXCLUDED.salary,
	employment_type = EXCLUDED.employment_type,
	description_text = EXCLUDED.description_text,
	description_html = EXCLUDED.description_html,
	source_url = EXCLUDED.source_url,
	extraction_strategy = EXCLUDED.extraction_strategy,
	provenance = EXCLUDED.provenance,
	emitted_at = EXCLUDED.emitted_at`, s.table)

	args := []any{
		record.ExternalID,
		record.RunID,
		record.Title,
		record.Company,
		record.Location,
		record.DatePosted,
		record.Salary,
		record.EmploymentType,
		record.DescriptionText,
		record.DescriptionHTML,
		record.SourceURL,
		record.Strategy,
		provenance,
		record.EmittedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert posting %s: %w", record.ExternalID, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close(_ context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.logger.Debug("postgres sink closed", zap.String("table", s.table))
	return nil
}

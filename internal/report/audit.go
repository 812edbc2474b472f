package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/config"
	"github.com/raaihank/binlog-scrub/internal/stream"
)

// AuditStore persists run summaries to PostgreSQL so a CI fleet has a
// compliance trail of what was redacted where. It stores counts and pattern
// names only.
type AuditStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS redaction_runs (
	run_id          TEXT PRIMARY KEY,
	input_path      TEXT NOT NULL,
	records         BIGINT NOT NULL,
	changed_records BIGINT NOT NULL,
	total_matches   BIGINT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	elapsed_ms      BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS redaction_run_patterns (
	run_id  TEXT NOT NULL REFERENCES redaction_runs(run_id),
	pattern TEXT NOT NULL,
	matches BIGINT NOT NULL,
	PRIMARY KEY (run_id, pattern)
);`

// NewAuditStore connects to the audit database and ensures the schema exists.
func NewAuditStore(cfg *config.AuditConfig, logger *zap.Logger) (*AuditStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &AuditStore{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// RecordRun inserts one run and its per-pattern counts in a single
// transaction.
func (s *AuditStore) RecordRun(ctx context.Context, summary *stream.Summary, inputPath string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO redaction_runs
			(run_id, input_path, records, changed_records, total_matches, started_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.RunID,
		inputPath,
		summary.Records,
		summary.ChangedRecords,
		summary.TotalMatches,
		summary.StartedAt,
		summary.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for pattern, matches := range summary.PerPattern {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO redaction_run_patterns (run_id, pattern, matches)
			VALUES ($1, $2, $3)`,
			summary.RunID, pattern, matches,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pattern count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	s.logger.Debug("Run recorded in audit trail",
		zap.String("run_id", summary.RunID),
		zap.Int64("matches", summary.TotalMatches))
	return nil
}

// Close releases the connection pool.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

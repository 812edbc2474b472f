// Package stream drives the decode → transform → encode loop over one
// container. The loop is strictly sequential: the container's framing and
// compression context carry across records, downstream consumers rely on
// event order, and the byte-identity guarantee leaves no room for reordering
// or speculative buffering.
package stream

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/binlog-scrub/internal/binlog"
	"github.com/raaihank/binlog-scrub/internal/redact"
)

// Source yields decoded records in container order and io.EOF at the end.
// It is lazy, finite, and non-restartable.
type Source interface {
	Next() (*binlog.Record, error)
}

// Sink serializes records in the order received.
type Sink interface {
	Write(*binlog.Record) error
}

// Finding is one match, stripped of all original content: enough to count,
// correlate, and audit, never enough to recover what was redacted.
type Finding struct {
	RecordIndex int64
	RecordKind  string
	Field       string
	Pattern     string
	PatternKind string
	Ordinal     int
}

// FindingCollector receives findings as they are discovered. Collectors must
// not block; the loop calls them inline.
type FindingCollector interface {
	Collect(Finding)
}

// Summary aggregates one run. Built incrementally while the run is live,
// immutable once Run returns.
type Summary struct {
	RunID          string
	Records        int64
	ChangedRecords int64
	TotalMatches   int64
	PerPattern     map[string]int64
	StartedAt      time.Time
	Elapsed        time.Duration
}

// Processor owns one pass over one container.
type Processor struct {
	transformer *redact.Transformer
	findings    FindingCollector // nil when no report export is configured
	logger      *zap.Logger
	progress    *rate.Limiter
}

// New creates a processor. findings may be nil.
func New(transformer *redact.Transformer, findings FindingCollector, logger *zap.Logger) *Processor {
	return &Processor{
		transformer: transformer,
		findings:    findings,
		logger:      logger,
		// At most one progress line per second, however fast records move.
		progress: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Run consumes every record from src, transforms it, and forwards it to sink
// in the same order. Decode and encode failures are not retried (the format
// has no record-level recovery point) and surface with the failing record's
// index. Cancellation takes effect only between records so the sink is never
// left mid-frame.
func (p *Processor) Run(ctx context.Context, src Source, sink Sink) (*Summary, error) {
	summary := &Summary{
		RunID:      uuid.NewString(),
		PerPattern: make(map[string]int64),
		StartedAt:  time.Now(),
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("run cancelled after %d records: %w", summary.Records, ctx.Err())
		default:
		}

		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", summary.Records, err)
		}

		outcome := p.transformer.TransformRecord(ctx, rec)
		p.account(summary, outcome)

		if err := sink.Write(outcome.Record); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", summary.Records, err)
		}
		summary.Records++

		if p.progress.Allow() {
			p.logger.Info("Processing progress",
				zap.Int64("records", summary.Records),
				zap.Int64("matches", summary.TotalMatches),
				zap.Duration("elapsed", time.Since(summary.StartedAt)))
		}
	}

	summary.Elapsed = time.Since(summary.StartedAt)

	p.logger.Info("Stream pass completed",
		zap.String("run_id", summary.RunID),
		zap.Int64("records", summary.Records),
		zap.Int64("changed_records", summary.ChangedRecords),
		zap.Int64("matches", summary.TotalMatches),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, nil
}

func (p *Processor) account(summary *Summary, outcome redact.Outcome) {
	if !outcome.Changed {
		return
	}

	summary.ChangedRecords++
	summary.TotalMatches += int64(len(outcome.Matches))

	for _, m := range outcome.Matches {
		summary.PerPattern[m.Pattern]++

		if p.findings != nil {
			p.findings.Collect(Finding{
				RecordIndex: summary.Records,
				RecordKind:  outcome.Record.Kind.String(),
				Field:       m.Field,
				Pattern:     m.Pattern,
				PatternKind: string(m.Kind),
				Ordinal:     m.Ordinal,
			})
		}
	}
}

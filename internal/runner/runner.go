// Package runner wires one redaction run end to end: option validation,
// catalog construction, collaborator setup, the container pass, and the
// atomic swap of the destination file. Every failure path leaves the
// destination either absent or exactly as it was before the run.
package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/binlog"
	"github.com/raaihank/binlog-scrub/internal/cache"
	"github.com/raaihank/binlog-scrub/internal/config"
	"github.com/raaihank/binlog-scrub/internal/logger"
	"github.com/raaihank/binlog-scrub/internal/pattern"
	"github.com/raaihank/binlog-scrub/internal/redact"
	"github.com/raaihank/binlog-scrub/internal/report"
	"github.com/raaihank/binlog-scrub/internal/stream"
)

// Runner executes redaction runs against a filesystem.
type Runner struct {
	cfg *config.Config
	log *logger.Logger
	fs  afero.Fs
	out io.Writer // run summary destination
}

// New creates a runner against the OS filesystem, summarizing to stdout.
func New(cfg *config.Config, log *logger.Logger) *Runner {
	return NewWithCollaborators(cfg, log, afero.NewOsFs(), os.Stdout)
}

// NewWithCollaborators creates a runner with explicit filesystem and summary
// sink, the seam the tests use.
func NewWithCollaborators(cfg *config.Config, log *logger.Logger, fs afero.Fs, out io.Writer) *Runner {
	return &Runner{cfg: cfg, log: log, fs: fs, out: out}
}

// Execute validates options, runs the container pass, and maps the outcome to
// a Code. Option and catalog validation happen before any file is touched.
func (r *Runner) Execute(ctx context.Context, opts config.Options) Code {
	log := r.log.WithComponent("runner")

	if opts.InputPath == "" {
		log.Error("Input path is required")
		return CodeInvalidOptions
	}
	if opts.OutputFileName == "" {
		log.Error("Output file name is required")
		return CodeInvalidOptions
	}

	catalog, err := pattern.Build(opts.ExplicitPatterns, pattern.BuildOptions{
		IncludeBuiltins: !opts.DisableBuiltinPatterns,
		CaseInsensitive: r.cfg.Patterns.CaseInsensitive,
	})
	if err != nil {
		log.Error("Pattern catalog rejected", zap.Error(err))
		return CodeInvalidOptions
	}
	log.Info("Pattern catalog built",
		zap.Int("rules", catalog.Len()),
		zap.Bool("builtins", !opts.DisableBuiltinPatterns))

	// Precondition checks before anything opens.
	exists, err := afero.Exists(r.fs, opts.InputPath)
	if err != nil {
		log.Error("Failed to stat input", zap.String("path", opts.InputPath), zap.Error(err))
		return CodeIOFailure
	}
	if !exists {
		log.Error("Input file not found", zap.String("path", opts.InputPath))
		return CodeInputNotFound
	}

	destExists, err := afero.Exists(r.fs, opts.OutputFileName)
	if err != nil {
		log.Error("Failed to stat output", zap.String("path", opts.OutputFileName), zap.Error(err))
		return CodeIOFailure
	}
	if destExists && !opts.Overwrite {
		log.Error("Output file already exists and overwrite is disabled",
			zap.String("path", opts.OutputFileName))
		return CodeOutputAlreadyExists
	}

	scans, code := r.openCache(log)
	if code != CodeSuccess {
		return code
	}
	if scans != nil {
		defer scans.Close()
	}

	var exporter *report.ParquetExporter
	var findings stream.FindingCollector
	if r.cfg.Report.ExportPath != "" {
		exporter = report.NewParquetExporter(r.fs, r.cfg.Report.ExportPath, log.Logger)
		findings = exporter
	}

	var audit *report.AuditStore
	if r.cfg.Audit.Enabled {
		audit, err = report.NewAuditStore(&r.cfg.Audit, log.Logger)
		if err != nil {
			log.Error("Failed to open audit store", zap.Error(err))
			return CodeIOFailure
		}
		defer audit.Close()
	}

	summary, code := r.pass(ctx, opts, catalog, scans, findings, log)
	if code != CodeSuccess {
		return code
	}

	r.report(ctx, opts, summary, exporter, audit, log)
	return CodeSuccess
}

// pass runs decode → transform → encode into a temp file and atomically
// substitutes it for the destination on success. The temp file never survives
// a failure.
func (r *Runner) pass(
	ctx context.Context,
	opts config.Options,
	catalog *pattern.Catalog,
	scans cache.Cache,
	findings stream.FindingCollector,
	log *logger.Logger,
) (*stream.Summary, Code) {
	in, err := r.fs.Open(opts.InputPath)
	if err != nil {
		log.Error("Failed to open input", zap.String("path", opts.InputPath), zap.Error(err))
		return nil, CodeIOFailure
	}
	defer in.Close()

	src, err := binlog.NewReader(in)
	if err != nil {
		log.Error("Failed to open container", zap.String("path", opts.InputPath), zap.Error(err))
		return nil, CodeProcessingFailed
	}
	defer src.Close()

	tmp, err := afero.TempFile(r.fs, filepath.Dir(opts.OutputFileName), ".binscrub-*.tmp")
	if err != nil {
		log.Error("Failed to create temp output", zap.Error(err))
		return nil, CodeIOFailure
	}
	tmpPath := tmp.Name()
	discard := func() {
		tmp.Close()
		if rmErr := r.fs.Remove(tmpPath); rmErr != nil {
			log.Warn("Failed to remove temp output", zap.String("path", tmpPath), zap.Error(rmErr))
		}
	}

	sink, err := binlog.NewWriter(tmp)
	if err != nil {
		log.Error("Failed to start output container", zap.Error(err))
		discard()
		return nil, CodeIOFailure
	}

	transformer := redact.NewTransformer(catalog, opts.IdentifyReplacements, scans, log.Logger)
	processor := stream.New(transformer, findings, log.WithComponent("stream").Logger)

	summary, err := processor.Run(ctx, src, sink)
	if err != nil {
		log.Error("Container pass failed", zap.Error(err))
		discard()
		return nil, CodeProcessingFailed
	}

	if err := sink.Close(); err != nil {
		log.Error("Failed to finalize output container", zap.Error(err))
		discard()
		return nil, CodeProcessingFailed
	}
	if err := tmp.Close(); err != nil {
		log.Error("Failed to close temp output", zap.Error(err))
		discard()
		return nil, CodeIOFailure
	}

	if err := r.replace(tmpPath, opts.OutputFileName, opts.Overwrite); err != nil {
		log.Error("Failed to move output into place",
			zap.String("temp", tmpPath),
			zap.String("dest", opts.OutputFileName),
			zap.Error(err))
		if rmErr := r.fs.Remove(tmpPath); rmErr != nil {
			log.Warn("Failed to remove temp output", zap.String("path", tmpPath), zap.Error(rmErr))
		}
		return nil, CodeIOFailure
	}

	return summary, CodeSuccess
}

// replace renames tmp onto dest. The OS filesystem renames atomically over an
// existing file; filesystems that refuse get an explicit remove first, which
// the overwrite precondition check has already authorized.
func (r *Runner) replace(tmpPath, dest string, overwrite bool) error {
	err := r.fs.Rename(tmpPath, dest)
	if err == nil {
		return nil
	}
	if !overwrite {
		return err
	}
	if rmErr := r.fs.Remove(dest); rmErr != nil {
		return err
	}
	return r.fs.Rename(tmpPath, dest)
}

// report hands the summary to its consumers. The destination file is already
// in place by now, so reporting problems are logged, never turned into a
// failure code that would misrepresent the run.
func (r *Runner) report(
	ctx context.Context,
	opts config.Options,
	summary *stream.Summary,
	exporter *report.ParquetExporter,
	audit *report.AuditStore,
	log *logger.Logger,
) {
	printer := report.NewPrinter(r.out)
	if err := printer.WriteSummary(summary); err != nil {
		log.Warn("Failed to print run summary", zap.Error(err))
	}

	if exporter != nil {
		if err := exporter.Flush(summary); err != nil {
			log.Warn("Failed to export findings", zap.Error(err))
		}
	}

	if audit != nil {
		if err := audit.RecordRun(ctx, summary, opts.InputPath); err != nil {
			log.Warn("Failed to record run in audit trail", zap.Error(err))
		}
	}
}

// openCache builds the configured scan-cache backend. A nil cache simply
// disables memoization.
func (r *Runner) openCache(log *logger.Logger) (cache.Cache, Code) {
	switch r.cfg.Cache.Backend {
	case "", "none":
		return nil, CodeSuccess
	case "memory":
		return cache.NewMemoryCache(r.cfg.Cache.MaxEntries), CodeSuccess
	case "redis":
		c, err := cache.NewRedisCache(&r.cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Error("Failed to connect scan cache", zap.Error(err))
			return nil, CodeIOFailure
		}
		return c, CodeSuccess
	default:
		log.Error("Unknown cache backend", zap.String("backend", r.cfg.Cache.Backend))
		return nil, CodeInvalidOptions
	}
}

package report

import (
	"fmt"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/stream"
)

// findingRow is the Parquet schema for one exported finding. Column content
// is metadata only; the redacted values themselves never leave the container.
type findingRow struct {
	RunID       string `parquet:"run_id"`
	RecordIndex int64  `parquet:"record_index"`
	RecordKind  string `parquet:"record_kind"`
	Field       string `parquet:"field"`
	Pattern     string `parquet:"pattern"`
	PatternKind string `parquet:"pattern_kind"`
	Ordinal     int32  `parquet:"ordinal"`
	Timestamp   int64  `parquet:"timestamp_ms"`
}

// ParquetExporter accumulates findings during the pass and writes them out
// once the run has succeeded. Implements stream.FindingCollector.
type ParquetExporter struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
	rows   []findingRow
}

// NewParquetExporter creates an exporter targeting path on fs.
func NewParquetExporter(fs afero.Fs, path string, logger *zap.Logger) *ParquetExporter {
	return &ParquetExporter{fs: fs, path: path, logger: logger}
}

// Collect buffers one finding. The run id is stamped at flush time; the
// processor assigns it after the exporter is constructed.
func (e *ParquetExporter) Collect(f stream.Finding) {
	e.rows = append(e.rows, findingRow{
		RecordIndex: f.RecordIndex,
		RecordKind:  f.RecordKind,
		Field:       f.Field,
		Pattern:     f.Pattern,
		PatternKind: f.PatternKind,
		Ordinal:     int32(f.Ordinal),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// Flush writes the export file. Called only after the container pass
// succeeded; a failed run exports nothing.
func (e *ParquetExporter) Flush(summary *stream.Summary) error {
	file, err := e.fs.Create(e.path)
	if err != nil {
		return fmt.Errorf("failed to create findings export: %w", err)
	}
	defer file.Close()

	w := parquet.NewWriter(file)
	for i := range e.rows {
		e.rows[i].RunID = summary.RunID
		if err := w.Write(&e.rows[i]); err != nil {
			return fmt.Errorf("failed to write finding row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize findings export: %w", err)
	}

	e.logger.Info("Findings exported",
		zap.String("path", e.path),
		zap.Int("findings", len(e.rows)))
	return nil
}

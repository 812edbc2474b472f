// Package report delivers run results to their consumers: a plain-text
// summary for the console, an optional Parquet export of findings metadata,
// and an optional PostgreSQL audit trail. Nothing in this package ever sees
// original (pre-redaction) content.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/raaihank/binlog-scrub/internal/stream"
)

// Printer renders a RunSummary for human consumption.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WriteSummary prints the run totals and per-pattern counts, most-matched
// first with name as the tie-break so output is stable run to run.
func (p *Printer) WriteSummary(s *stream.Summary) error {
	if _, err := fmt.Fprintf(p.w,
		"Run %s: %d records processed, %d redacted, %d matches in %s\n",
		s.RunID, s.Records, s.ChangedRecords, s.TotalMatches, s.Elapsed.Round(time.Microsecond),
	); err != nil {
		return err
	}

	if len(s.PerPattern) == 0 {
		return nil
	}

	names := make([]string, 0, len(s.PerPattern))
	for name := range s.PerPattern {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.PerPattern[names[i]] != s.PerPattern[names[j]] {
			return s.PerPattern[names[i]] > s.PerPattern[names[j]]
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		if _, err := fmt.Fprintf(p.w, "  %8d  %s\n", s.PerPattern[name], name); err != nil {
			return err
		}
	}
	return nil
}

package redact

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/binlog"
	"github.com/raaihank/binlog-scrub/internal/cache"
	"github.com/raaihank/binlog-scrub/internal/pattern"
)

// FieldMatch is a Match annotated with the record field it occurred in.
type FieldMatch struct {
	Field string
	Match
}

// Outcome is the result of transforming one record: whether anything was
// rewritten, and every match found across its text-bearing fields.
type Outcome struct {
	Record  *binlog.Record
	Changed bool
	Matches []FieldMatch
}

// Transformer applies the substitution engine to every text-bearing field of
// a record. It holds the run's catalog and an optional scan cache; the engine
// itself stays pure.
type Transformer struct {
	catalog  *pattern.Catalog
	identify bool
	scans    cache.Cache // nil disables memoization
	logger   *zap.Logger
}

// NewTransformer creates a transformer for one run. scans may be nil.
func NewTransformer(cat *pattern.Catalog, identify bool, scans cache.Cache, logger *zap.Logger) *Transformer {
	return &Transformer{
		catalog:  cat,
		identify: identify,
		scans:    scans,
		logger:   logger,
	}
}

// TransformRecord rewrites the record's text-bearing fields in place. Fields
// with no matches keep their original string references, and a record with no
// matches anywhere keeps its retained encoding, so the writer reproduces its
// exact original bytes. Match ordinals restart at zero for every field.
func (t *Transformer) TransformRecord(ctx context.Context, rec *binlog.Record) Outcome {
	out := Outcome{Record: rec}

	switch rec.Kind {
	case binlog.KindMessage:
		t.applyField(ctx, "text", &rec.Text, &out)

	case binlog.KindTask:
		t.applyField(ctx, "name", &rec.Name, &out)
		for i := range rec.Args {
			t.applyField(ctx, "args["+strconv.Itoa(i)+"]", &rec.Args[i], &out)
		}
		t.applyField(ctx, "path", &rec.Path, &out)

	case binlog.KindEmbeddedFile:
		// Entry content is opaque binary; only the name is text.
		t.applyField(ctx, "name", &rec.Name, &out)
	}

	if out.Changed {
		rec.Invalidate()
	}
	return out
}

// applyField scans one field and writes the rewrite back through the pointer.
// An unchanged field is never reassigned a new value: *field keeps its
// original string.
func (t *Transformer) applyField(ctx context.Context, name string, field *string, out *Outcome) {
	res := t.scan(ctx, *field)
	if !res.Changed {
		return
	}

	*field = res.Text
	out.Changed = true
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, FieldMatch{Field: name, Match: m})
	}
}

// scan runs the engine with memoization. Cache failures degrade to a plain
// scan; a cache hit for an unchanged payload returns the caller's own string,
// preserving the reference-identity contract.
func (t *Transformer) scan(ctx context.Context, payload string) Result {
	if t.scans == nil || payload == "" {
		return Apply(payload, t.catalog, t.identify)
	}

	key := cache.Key(t.catalog.Fingerprint(), t.identify, payload)

	entry, ok, err := t.scans.Get(ctx, key)
	if err != nil {
		t.logger.Warn("Scan cache lookup failed, scanning directly", zap.Error(err))
	} else if ok && entry.Input == payload {
		return t.fromEntry(payload, entry)
	}

	res := Apply(payload, t.catalog, t.identify)

	if err := t.scans.Set(ctx, key, t.toEntry(payload, res)); err != nil {
		t.logger.Warn("Scan cache store failed", zap.Error(err))
	}
	return res
}

func (t *Transformer) toEntry(payload string, res Result) *cache.Entry {
	entry := &cache.Entry{Input: payload, Changed: res.Changed}
	if !res.Changed {
		return entry
	}

	entry.Text = res.Text
	entry.Matches = make([]cache.Match, len(res.Matches))
	for i, m := range res.Matches {
		entry.Matches[i] = cache.Match{
			Pattern: m.Pattern,
			Start:   m.Start,
			End:     m.End,
			Ordinal: m.Ordinal,
		}
	}
	return entry
}

// fromEntry rebuilds a Result from a cache hit. The pattern kind is looked up
// from the catalog by name; entries only ever come from runs with the same
// catalog fingerprint, so the name is authoritative.
func (t *Transformer) fromEntry(payload string, entry *cache.Entry) Result {
	if !entry.Changed {
		return Result{Text: payload}
	}

	matches := make([]Match, len(entry.Matches))
	for i, m := range entry.Matches {
		matches[i] = Match{
			Pattern: m.Pattern,
			Kind:    t.kindOf(m.Pattern),
			Start:   m.Start,
			End:     m.End,
			Ordinal: m.Ordinal,
		}
	}
	return Result{Text: entry.Text, Matches: matches, Changed: true}
}

func (t *Transformer) kindOf(name string) pattern.Kind {
	for _, r := range t.catalog.Rules() {
		if r.Name == name {
			return r.Kind
		}
	}
	return pattern.KindLiteral
}

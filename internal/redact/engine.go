// Package redact rewrites sensitive spans inside decoded record text. The
// engine is a pure function of (payload, catalog, identify): no state, no
// side effects, and no allocation when nothing matches, so a
// match-free payload flows through as the very same string it came in as.
package redact

import (
	"sort"
	"strconv"
	"strings"

	"github.com/raaihank/binlog-scrub/internal/pattern"
)

// Marker replaces every redacted span. With identify enabled the marker
// carries the match's zero-based ordinal within its field, e.g. <REDACTED:2>,
// so reviewers can correlate redactions across a report without seeing the
// original content. The angle brackets are excluded from every built-in value
// class, which is what makes redaction idempotent.
const Marker = "<REDACTED>"

// Match is one located occurrence of a catalog rule within a payload.
// [Start, End) are byte offsets into the original payload; matches within one
// payload never overlap.
type Match struct {
	Pattern string
	Kind    pattern.Kind
	Start   int
	End     int
	Ordinal int
}

// Result is the outcome of scanning one payload.
//
// When Changed is false, Text is the identical string value the caller
// passed in: same backing bytes, not an equal copy. Downstream encoding
// relies on that to reproduce the original container byte-for-byte.
type Result struct {
	Text    string
	Matches []Match
	Changed bool
}

// Apply scans payload against every rule in the catalog and rewrites the
// surviving spans. Overlapping candidates from different rules are resolved
// leftmost-longest: the span starting earliest wins, ties go to the longer
// span, and the loser is discarded entirely (never double-redacted).
func Apply(payload string, cat *pattern.Catalog, identify bool) Result {
	if payload == "" {
		return Result{Text: payload}
	}

	spans := collectSpans(payload, cat)
	if len(spans) == 0 {
		// No allocation, no copy: the unchanged reference is the contract.
		return Result{Text: payload}
	}

	spans = resolveOverlaps(spans)

	var b strings.Builder
	b.Grow(len(payload))

	matches := make([]Match, 0, len(spans))
	prev := 0
	for i, s := range spans {
		b.WriteString(payload[prev:s.start])
		b.WriteString(Marker[:len(Marker)-1])
		if identify {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(i))
		}
		b.WriteByte('>')
		prev = s.end

		matches = append(matches, Match{
			Pattern: s.rule.Name,
			Kind:    s.rule.Kind,
			Start:   s.start,
			End:     s.end,
			Ordinal: i,
		})
	}
	b.WriteString(payload[prev:])

	return Result{Text: b.String(), Matches: matches, Changed: true}
}

// span is a candidate match before overlap resolution.
type span struct {
	start, end int
	rule       *pattern.Rule
}

// collectSpans gathers every candidate occurrence of every rule. Rules with a
// capture group redact just that group; rules with a verifier only yield
// spans the verifier confirms.
func collectSpans(payload string, cat *pattern.Catalog) []span {
	var spans []span

	rules := cat.Rules()
	for i := range rules {
		rule := &rules[i]

		locs := rule.Pattern.FindAllStringSubmatchIndex(payload, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			if rule.Group > 0 {
				start, end = loc[2*rule.Group], loc[2*rule.Group+1]
			}
			if start < 0 || start >= end {
				continue
			}
			if rule.Verify != nil && !rule.Verify(payload[start:end]) {
				continue
			}
			spans = append(spans, span{start: start, end: end, rule: rule})
		}
	}

	return spans
}

// resolveOverlaps applies the leftmost-longest policy: sort by start
// ascending with longer spans first on ties, then keep each span that does
// not overlap the previously kept one. The sort is stable so that when two
// rules produce the identical span, attribution goes to the rule earlier in
// catalog order. In-place; returns the kept prefix.
func resolveOverlaps(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	kept := spans[:1]
	for _, s := range spans[1:] {
		if s.start >= kept[len(kept)-1].end {
			kept = append(kept, s)
		}
	}
	return kept
}

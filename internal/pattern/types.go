package pattern

import "regexp"

// Kind distinguishes caller-supplied literals from built-in heuristics.
type Kind string

const (
	// KindLiteral is an exact substring supplied by the caller
	KindLiteral Kind = "literal"
	// KindBuiltin is one of the versioned heuristic rules
	KindBuiltin Kind = "builtin"
)

// Rule is a single sensitive-value matcher. Rules are immutable once the
// catalog that owns them is built.
type Rule struct {
	// Name identifies the rule in reports and per-pattern counts. Literal
	// rules use the literal text itself as the name.
	Name string

	// Kind records where the rule came from.
	Kind Kind

	// Pattern locates candidate occurrences. When Group is non-zero, the
	// redacted span is that capture group rather than the whole match.
	Pattern *regexp.Regexp
	Group   int

	// Verify, when set, confirms a candidate span before it is reported.
	// Used by heuristics whose regex alone over-matches.
	Verify func(match string) bool

	// CaseSensitive is informational for literals; the compiled Pattern
	// already encodes it.
	CaseSensitive bool
}

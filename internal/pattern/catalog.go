// Package pattern holds the active set of sensitive-value matchers for one
// redaction run: caller-supplied literals plus the versioned built-in
// heuristics. A catalog is built once from validated options and is read-only
// afterwards.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrNoPatterns is returned when built-ins are disabled and no explicit
// patterns were supplied. A run with nothing to redact is almost certainly a
// misconfiguration and must fail validation rather than silently no-op.
var ErrNoPatterns = errors.New("no patterns configured: built-in heuristics disabled and no explicit patterns given")

// BuildOptions controls catalog construction.
type BuildOptions struct {
	// IncludeBuiltins adds the versioned heuristic rules after the literals.
	IncludeBuiltins bool
	// CaseInsensitive makes explicit literals match regardless of case.
	CaseInsensitive bool
}

// Catalog is an ordered, deduplicated set of rules.
type Catalog struct {
	rules       []Rule
	fingerprint uint64
}

// Build constructs a catalog from explicit literal patterns and, when
// requested, the built-in heuristics. Literals keep their supplied order and
// precede built-ins; duplicates (by normalized form) are dropped, keeping the
// first occurrence.
func Build(explicit []string, opts BuildOptions) (*Catalog, error) {
	if !opts.IncludeBuiltins && len(explicit) == 0 {
		return nil, ErrNoPatterns
	}

	rules := make([]Rule, 0, len(explicit)+8)
	seen := make(map[string]struct{}, len(explicit)+8)

	for _, lit := range explicit {
		if lit == "" {
			return nil, fmt.Errorf("explicit pattern must not be empty")
		}

		norm := normalizeLiteral(lit, opts.CaseInsensitive)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}

		rules = append(rules, compileLiteral(lit, len(rules)+1, opts.CaseInsensitive))
	}

	if opts.IncludeBuiltins {
		for _, r := range builtinRules() {
			norm := "builtin\x00" + r.Name
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			rules = append(rules, r)
		}
	}

	return &Catalog{
		rules:       rules,
		fingerprint: fingerprintRules(rules, opts),
	}, nil
}

// compileLiteral turns a literal into a regexp rule so the substitution
// engine has a single matcher shape for literals and heuristics alike. The
// rule name is "literal-<seq>" rather than the literal itself: rule names
// flow into the console summary, the findings export, and the audit trail,
// and none of those may ever carry the sensitive value.
func compileLiteral(lit string, seq int, insensitive bool) Rule {
	expr := regexp.QuoteMeta(lit)
	if insensitive {
		expr = "(?i)" + expr
	}
	return Rule{
		Name:          "literal-" + strconv.Itoa(seq),
		Kind:          KindLiteral,
		Pattern:       regexp.MustCompile(expr),
		CaseSensitive: !insensitive,
	}
}

func normalizeLiteral(lit string, insensitive bool) string {
	if insensitive {
		lit = strings.ToLower(lit)
	}
	return "literal\x00" + lit
}

// fingerprintRules hashes the catalog's identity: rule kinds, compiled
// expressions, case handling, and the built-in set version. Expressions
// rather than names, since anonymized literal names carry no content and two
// different literal sets must never share a fingerprint. Scan caches key on
// it so entries from a differently configured run can never be served.
func fingerprintRules(rules []Rule, opts BuildOptions) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString("v" + strconv.Itoa(BuiltinVersion))
	if opts.CaseInsensitive {
		_, _ = h.WriteString("\x00ci")
	}
	for _, r := range rules {
		_, _ = h.WriteString("\x00" + string(r.Kind) + "\x00" + r.Pattern.String())
	}
	return h.Sum64()
}

// Rules returns the rules in catalog order. Callers must not modify the
// returned slice.
func (c *Catalog) Rules() []Rule { return c.rules }

// Len returns the number of active rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Fingerprint is a stable hash of the catalog's configuration.
func (c *Catalog) Fingerprint() uint64 { return c.fingerprint }

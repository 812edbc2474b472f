package pattern

import (
	"math"
	"regexp"
)

// BuiltinVersion identifies the heuristic set below. Bump it whenever a rule
// is added, removed, or changes what it matches, so stored audit rows remain
// comparable across runs.
const BuiltinVersion = 1

// Built-in value classes exclude '<' and '>' so a substituted marker token
// can never re-match on a second pass over already-redacted output.
var (
	reSecretAssignment = regexp.MustCompile(
		`(?i)\b(?:password|passwd|pwd|secret|token|api[_-]?key|apikey|auth|access[_-]?key|client[_-]?secret|connection[_-]?string|connectionstring|credential|pat)s?\s*[=:]\s*("[^"<>]+"|'[^'<>]+'|[^\s;,<>'"]+)`)

	reBearerAuth = regexp.MustCompile(
		`(?i)\b(?:bearer|basic)\s+([A-Za-z0-9\-._~+/]{8,}=*)`)

	reURLCredentials = regexp.MustCompile(
		`[a-zA-Z][a-zA-Z0-9+.-]*://[^/\s:@<>]+:([^@\s<>]+)@`)

	reAWSAccessKeyID = regexp.MustCompile(
		`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`)

	reLongToken = regexp.MustCompile(
		`\b[A-Za-z0-9+/=_\-]{32,}\b`)
)

// builtinRules returns the fixed heuristic set, in deterministic order. The
// more specific rules come first; ordering only matters for reporting since
// overlap resolution is leftmost-longest regardless of rule order.
func builtinRules() []Rule {
	return []Rule{
		{
			Name:    "secret-assignment",
			Kind:    KindBuiltin,
			Pattern: reSecretAssignment,
			Group:   1,
		},
		{
			Name:    "bearer-auth",
			Kind:    KindBuiltin,
			Pattern: reBearerAuth,
			Group:   1,
		},
		{
			Name:    "url-credentials",
			Kind:    KindBuiltin,
			Pattern: reURLCredentials,
			Group:   1,
		},
		{
			Name:    "aws-access-key-id",
			Kind:    KindBuiltin,
			Pattern: reAWSAccessKeyID,
		},
		{
			Name:    "high-entropy-token",
			Kind:    KindBuiltin,
			Pattern: reLongToken,
			Verify:  isHighEntropy,
		},
	}
}

// minTokenEntropy is bits per byte; GUIDs and plain hex hashes sit below it,
// base64-encoded key material sits above.
const minTokenEntropy = 3.5

// isHighEntropy computes Shannon entropy over the candidate's bytes.
// Hex-shaped candidates (content hashes, GUIDs) are rejected outright:
// build logs are full of them and they are not credentials.
func isHighEntropy(s string) bool {
	if len(s) == 0 || isHexShaped(s) {
		return false
	}

	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}

	entropy := 0.0
	n := float64(len(s))
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}

	return entropy >= minTokenEntropy
}

func isHexShaped(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

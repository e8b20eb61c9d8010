// Package text provides request-text normalization for the voice service.
//
// Normalization is applied to the text before both cache key derivation and
// engine invocation, so requests that differ only in incidental formatting
// share one cache entry and one synthesized result.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for normalization.
const (
	whitespaceRegexPattern = `\s+`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Normalizer canonicalizes request text. The zero value is not usable; create
// instances with NewNormalizer so the patterns and replacers compile once.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
	caseFold          bool
}

// NewNormalizer creates a normalizer that trims, collapses whitespace,
// canonicalizes typographic punctuation, and folds case.
func NewNormalizer() *Normalizer {
	return newNormalizer(true)
}

// NewExactNormalizer creates a normalizer that preserves letter case, for
// deployments that want exact-text caching. Whitespace and punctuation
// canonicalization still apply.
func NewExactNormalizer() *Normalizer {
	return newNormalizer(false)
}

func newNormalizer(caseFold bool) *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		caseFold: caseFold,
	}
}

// Normalize canonicalizes a request text. It is pure and fast: no allocation
// beyond the result, no I/O, safe for concurrent use.
func (n *Normalizer) Normalize(input string) string {
	normalized := n.punctReplacer.Replace(input)
	normalized = n.whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	if n.caseFold {
		normalized = strings.ToLower(normalized)
	}

	return normalized
}

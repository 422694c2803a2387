// Package policy holds the pure retry policies consulted by the
// dispatch engine: rate-limit classification of error messages and
// backoff delay computation. Everything here is stateless and safe for
// concurrent use.
package policy

import "regexp"

// defaultSignatures match the rate-limit and overload errors the
// remote text-generation vendors are known to return. HTTP-style codes
// arrive embedded in opaque error strings, so substring patterns are
// the only reliable signal.
var defaultSignatures = []string{
	`rateLimitExceeded`,
	`429`,
	`The model is overloaded`,
	`503`,
	`500`,
	`Internal`,
	`RESOURCE_EXHAUSTED`,
}

// Classifier decides whether an error message indicates rate limiting
// or service overload, as opposed to a generic transient fault.
type Classifier struct {
	patterns []*regexp.Regexp
}

// NewClassifier builds a Classifier from the given signature patterns.
// With no signatures the default vendor set is used.
func NewClassifier(signatures ...string) *Classifier {
	if len(signatures) == 0 {
		signatures = defaultSignatures
	}
	c := &Classifier{patterns: make([]*regexp.Regexp, 0, len(signatures))}
	for _, s := range signatures {
		re, err := regexp.Compile(s)
		if err != nil {
			// Fall back to a literal match for invalid patterns.
			re = regexp.MustCompile(regexp.QuoteMeta(s))
		}
		c.patterns = append(c.patterns, re)
	}
	return c
}

// IsRateLimited reports whether msg matches any known rate-limit
// signature.
func (c *Classifier) IsRateLimited(msg string) bool {
	for _, re := range c.patterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

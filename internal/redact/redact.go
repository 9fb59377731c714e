// Package redact scrubs personally identifiable information from text
// before it is embedded in a prompt sent to an external model. It is not
// applied to persisted data or to responses returned to the user.
package redact

import "regexp"

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// Each rule replaces one distinct class of sensitive token.
var rules = []rule{
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`\b\d(?:[ -]?\d){12,15}\b`), "[CARD]"},
	{regexp.MustCompile(`(?:\+?1[-. ])?(?:\(\d{3}\)[-. ]?|\d{3}[-. ])\d{3}[-. ]\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`\b(?:sk|pk|api|key|token)[-_][A-Za-z0-9_-]{16,}\b`), "[API_KEY]"},
}

// Scrub replaces every recognized sensitive pattern in text with a
// class-specific placeholder. Empty input passes through unchanged.
func Scrub(text string) string {
	if text == "" {
		return text
	}
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.placeholder)
	}
	return text
}

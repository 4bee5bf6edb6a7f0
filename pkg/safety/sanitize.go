package safety

import "regexp"

// redaction is one sanitizer rule. Rules run in order: card numbers before
// phone numbers so a card's digit run is consumed before the 10-digit
// phone pattern can see it.
type redaction struct {
	Regex       *regexp.Regexp
	Replacement string
}

var redactions = []redaction{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED-SSN]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){16}\b`), "[REDACTED-CARD]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED-EMAIL]"},
	{regexp.MustCompile(`\b\d{10}\b`), "[REDACTED-PHONE]"},
}

// Sanitize redacts SSNs, 16-digit card numbers, email addresses, and
// 10-digit phone numbers with tagged placeholders. Idempotent: placeholders
// contain no digits or addresses, so re-sanitizing is a no-op.
func Sanitize(text string) string {
	for _, r := range redactions {
		text = r.Regex.ReplaceAllString(text, r.Replacement)
	}
	return text
}

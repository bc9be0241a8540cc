// Package sanitize validates raw search input before it enters the queue.
// Terms are later interpolated into source URLs and into the commit message
// handed to the publisher, so this is the single validation point: nothing
// downstream re-checks them.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidInput is returned for any rejected term or postal code.
var ErrInvalidInput = errors.New("invalid input")

const (
	minTermLen = 2
	maxTermLen = 55
)

// Deny-list of adversarial constructs. These can never match a string made of
// the allowed alphabet; they exist so rejections of hostile input are explicit
// and testable. The allow-list below is the actual security boundary.
var denyPatterns = []*regexp.Regexp{
	// control characters
	regexp.MustCompile(`[\x00-\x1f\x7f]`),
	// HTML / script tag openers
	regexp.MustCompile(`(?i)</?[a-z!]`),
	// script-protocol prefixes
	regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`),
	// inline event-handler attributes (onerror=, onclick=, ...)
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	// template interpolation: ${...}, {{...}}, <%...%>
	regexp.MustCompile(`\$\{|\{\{|<%|%>`),
	// backtick-delimited sequences
	regexp.MustCompile("`"),
	// hex / unicode escape sequences
	regexp.MustCompile(`(?i)\\x[0-9a-f]{2}|\\u[0-9a-f]{4}`),
	// percent-encoded variants of the above (< > " ' ` $ { } NUL)
	regexp.MustCompile(`(?i)%(3c|3e|22|27|60|24|7b|7d|00)`),
}

// allowTerm is the real boundary: letters, digits, spaces and a small set of
// punctuation that appears in model names and street names.
var allowTerm = regexp.MustCompile(`^[\p{L}\p{N}_ \-.,()&+]+$`)

var multiSpace = regexp.MustCompile(`\s+`)

var nonDigit = regexp.MustCompile(`\D`)

// Term trims and whitespace-collapses raw, then validates it. The returned
// string is safe to embed in a URL query or a shell command argument.
func Term(raw string) (string, error) {
	term := multiSpace.ReplaceAllString(strings.TrimSpace(raw), " ")

	if n := utf8.RuneCountInString(term); n < minTermLen || n > maxTermLen {
		return "", fmt.Errorf("%w: term length %d outside [%d, %d]", ErrInvalidInput, n, minTermLen, maxTermLen)
	}

	for _, p := range denyPatterns {
		if p.MatchString(term) {
			return "", fmt.Errorf("%w: term matches denied pattern %q", ErrInvalidInput, p.String())
		}
	}

	if !allowTerm.MatchString(term) {
		return "", fmt.Errorf("%w: term contains characters outside the allowed set", ErrInvalidInput)
	}

	return term, nil
}

// PostalCode strips non-digits, truncates to five digits and requires exactly
// five to remain.
func PostalCode(raw string) (string, error) {
	code := nonDigit.ReplaceAllString(raw, "")
	if len(code) > 5 {
		code = code[:5]
	}
	if len(code) != 5 {
		return "", fmt.Errorf("%w: postal code must be 5 digits", ErrInvalidInput)
	}
	return code, nil
}

// Package sanitize classifies untrusted free text for injection risk and
// normalizes it before storage or rendering.
//
// All functions are pure and safe for concurrent use. Length caps count runes,
// never bytes, so truncation cannot split a UTF-8 sequence.
//
// # What this package must NOT do
//
//   - Keep state between calls or cache classifications.
//   - Decide what a caller does with a positive classification.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxStringLength caps SanitizeString output.
	MaxStringLength = 255
	// MaxTextLength caps SanitizeText output.
	MaxTextLength = 1000
	// MaxEmailLength caps SanitizeEmail output.
	MaxEmailLength = 255
	// MaxURLLength caps SanitizeURL output.
	MaxURLLength = 500
)

// ErrInvalidFormat is returned by SanitizeEmail and SanitizeURL for malformed input.
var ErrInvalidFormat = errors.New("invalid format")

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlPattern   = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"/", "&#x2F;",
	)
	sqlEscaper = strings.NewReplacer(
		"'", "''",
		`\`, `\\`,
		`"`, `\"`,
	)
)

// SanitizeString cleans a short single-field value.
func SanitizeString(input string) string {
	return clean(input, MaxStringLength)
}

// SanitizeText cleans a long free-text value.
func SanitizeText(input string) string {
	return clean(input, MaxTextLength)
}

// SanitizeEmail trims and lowercases an address and rejects it if malformed.
// Blank input yields "" without error.
func SanitizeEmail(input string) (string, error) {
	if !hasText(input) {
		return "", nil
	}
	out := strings.ToLower(trim(input))
	if !emailPattern.MatchString(out) {
		return "", fmt.Errorf("%w: email", ErrInvalidFormat)
	}
	return truncate(out, MaxEmailLength), nil
}

// SanitizeURL trims a URL and rejects anything that is not http, https or ftp.
// Blank input yields "" without error.
func SanitizeURL(input string) (string, error) {
	if !hasText(input) {
		return "", nil
	}
	out := trim(input)
	if !urlPattern.MatchString(out) {
		return "", fmt.Errorf("%w: url", ErrInvalidFormat)
	}
	return truncate(out, MaxURLLength), nil
}

// EscapeHTML replaces the characters significant in HTML markup and attributes.
func EscapeHTML(input string) string {
	if !hasText(input) {
		return ""
	}
	return htmlEscaper.Replace(input)
}

// EscapeSQL doubles single quotes and backslash-escapes backslashes and double quotes.
// It is a last line of defence for legacy string-built queries; parameterized
// queries do not need it.
func EscapeSQL(input string) string {
	if !hasText(input) {
		return ""
	}
	return sqlEscaper.Replace(input)
}

func clean(input string, limit int) string {
	if !hasText(input) {
		return ""
	}
	out := strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, trim(input))
	return truncate(out, limit)
}

// CR, LF and TAB survive; NUL and every other C0 control or DEL is removed.
func isStrippedControl(r rune) bool {
	switch r {
	case '\r', '\n', '\t':
		return false
	}
	return r < 0x20 || r == 0x7f
}

func hasText(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}

func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

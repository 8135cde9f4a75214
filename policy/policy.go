// Package policy evaluates password strength against a fixed rule table.
//
// [Validate] is a pure function: every rule is evaluated independently and the
// result lists every violated rule in rule order. Only an empty password
// short-circuits.
//
// # What this package must NOT do
//
//   - Hash, store or log passwords.
//   - Import any other shopguard package.
package policy

import (
	"strings"
	"unicode/utf8"
)

// MinLength is the minimum password length in characters.
const MinLength = 8

// MaxRepeat is the longest allowed run of one repeated character.
const MaxRepeat = 3

// Violation is a stable reason code for a failed rule.
type Violation string

const (
	ViolationEmpty        Violation = "empty"
	ViolationTooShort     Violation = "too_short"
	ViolationNoUppercase  Violation = "no_uppercase"
	ViolationNoLowercase  Violation = "no_lowercase"
	ViolationNoDigit      Violation = "no_digit"
	ViolationNoSpecial    Violation = "no_special"
	ViolationCommon       Violation = "common_password"
	ViolationSequential   Violation = "sequential_characters"
	ViolationRepeatedRuns Violation = "repeated_characters"
)

var violationMessages = map[Violation]string{
	ViolationEmpty:        "password cannot be empty",
	ViolationTooShort:     "password must be at least 8 characters long",
	ViolationNoUppercase:  "password must contain at least one uppercase letter",
	ViolationNoLowercase:  "password must contain at least one lowercase letter",
	ViolationNoDigit:      "password must contain at least one digit",
	ViolationNoSpecial:    "password must contain at least one special character",
	ViolationCommon:       "password is too common and easily guessable",
	ViolationSequential:   "password contains sequential characters which are not allowed",
	ViolationRepeatedRuns: "password contains too many repeated characters",
}

// Message returns the human-readable explanation for v.
func (v Violation) Message() string {
	if msg, ok := violationMessages[v]; ok {
		return msg
	}
	return string(v)
}

// SpecialCharacters is the set that satisfies the special-character rule.
const SpecialCharacters = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

var commonPasswords = []string{
	"password", "123456", "123456789", "qwerty", "abc123",
	"password123", "admin", "letmein", "welcome", "monkey",
	"1234567890", "password1", "qwerty123", "dragon", "master",
}

// CommonPasswords returns a copy of the blocked substring list.
func CommonPasswords() []string {
	out := make([]string, len(commonPasswords))
	copy(out, commonPasswords)
	return out
}

// Result is the outcome of one validation.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Has reports whether v is among the violations.
func (r Result) Has(v Violation) bool {
	for _, got := range r.Violations {
		if got == v {
			return true
		}
	}
	return false
}

// Messages returns the human-readable message for each violation, in order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message())
	}
	return out
}

// Error joins all violation messages; it is empty for a valid result.
func (r Result) Error() string {
	return strings.Join(r.Messages(), ", ")
}

// Validate checks password against every rule.
func Validate(password string) Result {
	if password == "" {
		return Result{Violations: []Violation{ViolationEmpty}}
	}

	var violations []Violation
	add := func(failed bool, v Violation) {
		if failed {
			violations = append(violations, v)
		}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	add(utf8.RuneCountInString(password) < MinLength, ViolationTooShort)
	add(!hasUpper, ViolationNoUppercase)
	add(!hasLower, ViolationNoLowercase)
	add(!hasDigit, ViolationNoDigit)
	add(!hasSpecial, ViolationNoSpecial)
	add(isCommon(password), ViolationCommon)
	add(hasSequence(password), ViolationSequential)
	add(hasRepeatedRun(password), ViolationRepeatedRuns)

	return Result{Valid: len(violations) == 0, Violations: violations}
}

func isCommon(password string) bool {
	lower := strings.ToLower(password)
	for _, common := range commonPasswords {
		if strings.Contains(lower, common) {
			return true
		}
	}
	return false
}

// Three consecutive ascending code points, e.g. "abc", "XYZ" or "123".
func hasSequence(password string) bool {
	runes := []rune(strings.ToLower(password))
	for i := 0; i+2 < len(runes); i++ {
		if runes[i+1] == runes[i]+1 && runes[i+2] == runes[i+1]+1 {
			return true
		}
	}
	return false
}

func hasRepeatedRun(password string) bool {
	run := 0
	var prev rune
	for i, r := range []rune(password) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > MaxRepeat {
			return true
		}
		prev = r
	}
	return false
}

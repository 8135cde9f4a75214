package sanitize

import "regexp"

// Every pattern is anchored at both ends and evaluated against the whole input.
// The leading and trailing ".*" let a metacharacter appear anywhere on a single
// line, but "." does not cross a newline, so multi-line input never matches.
var (
	sqlInjectionPattern = regexp.MustCompile(
		`^(?i:.*(?:--|[;|*%+=<>()\[\]{}^$?!&#@~` + "`" + `,./\\:'"\x00\x1a]).*)$`,
	)
	xssPattern = regexp.MustCompile(
		`^(?i:.*<script.*>.*</script>.*|<.*javascript:.*>.*|.*on\w+\s*=.*)$`,
	)
	pathTraversalPattern = regexp.MustCompile(
		`^(?:.*(?:\.\./|\.\.\\|%2e%2e%2f|%2e%2e%5c).*)$`,
	)
	commandInjectionPattern = regexp.MustCompile(
		`^(?i:.*[;&|` + "`" + `$(){}\[\]<>"'\\].*)$`,
	)
)

// ThreatSignal is the per-category classification of one input string.
type ThreatSignal struct {
	SQLInjection     bool `json:"sql_injection"`
	XSS              bool `json:"xss"`
	PathTraversal    bool `json:"path_traversal"`
	CommandInjection bool `json:"command_injection"`
}

// Any reports whether at least one category matched.
func (s ThreatSignal) Any() bool {
	return s.SQLInjection || s.XSS || s.PathTraversal || s.CommandInjection
}

// Categories lists the names of matched categories in a fixed order.
func (s ThreatSignal) Categories() []string {
	var out []string
	if s.SQLInjection {
		out = append(out, "sql_injection")
	}
	if s.XSS {
		out = append(out, "xss")
	}
	if s.PathTraversal {
		out = append(out, "path_traversal")
	}
	if s.CommandInjection {
		out = append(out, "command_injection")
	}
	return out
}

// Classify evaluates input against all four categories.
func Classify(input string) ThreatSignal {
	return ThreatSignal{
		SQLInjection:     ContainsSQLInjection(input),
		XSS:              ContainsXSS(input),
		PathTraversal:    ContainsPathTraversal(input),
		CommandInjection: ContainsCommandInjection(input),
	}
}

// ContainsSQLInjection reports whether input matches the SQL metacharacter pattern.
func ContainsSQLInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input)
}

// ContainsXSS reports whether input looks like a script tag, a javascript: URL
// inside a tag, or an inline event handler assignment.
func ContainsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

// ContainsPathTraversal reports whether input contains "../", "..\" or their
// lowercase percent-encoded forms.
func ContainsPathTraversal(input string) bool {
	return pathTraversalPattern.MatchString(input)
}

// ContainsCommandInjection reports whether input contains a shell metacharacter.
func ContainsCommandInjection(input string) bool {
	return commandInjectionPattern.MatchString(input)
}

// IsSafeInput is true when no category matches.
func IsSafeInput(input string) bool {
	return !ContainsSQLInjection(input) &&
		!ContainsXSS(input) &&
		!ContainsPathTraversal(input) &&
		!ContainsCommandInjection(input)
}

package policy

import (
	"regexp"
	"strings"
)

// Match reports whether value matches pattern. "*" matches anything. In any
// other pattern, "*" expands to any run of characters and "?" to exactly one
// character; everything else must match literally over the full string.
//
// The same matching applies to action strings ("namespace:action") and
// resource strings — no prefix matching outside wildcard expansion.
func Match(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == value
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// MatchAny reports whether value matches at least one of patterns.
func MatchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if Match(p, value) {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.Compile("^" + quoted + "$")
}

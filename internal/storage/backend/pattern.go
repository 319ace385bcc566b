package backend

import (
	"regexp"
	"strings"
)

// globToRegexp translates a key-matching glob into an anchored regular
// expression. Every regex metacharacter is escaped except '*' (-> ".*") and
// '?' (-> "."), and the result is anchored with ^...$ so that, e.g.,
// "a*" matches only keys starting with "a" and never matches a substring
// elsewhere in a longer key. This is the one piece of the Core pattern
// matching that most needs a dedicated correctness test.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

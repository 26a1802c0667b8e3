// Package textutil holds the pure text helpers shared by every extractor:
// markup stripping, tag/location/amount inference, date parsing and dedup.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)
	entityRe      = regexp.MustCompile(`&#?\w+;`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

// knownEntities are decoded in order. Everything else matching &...; becomes
// a space; full entity decoding is deliberately not attempted.
var knownEntities = []struct{ from, to string }{
	{"&nbsp;", " "},
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
}

// StripTags turns an HTML fragment into collapsed plain text.
func StripTags(html string) string {
	s := styleBlockRe.ReplaceAllString(html, " ")
	s = scriptBlockRe.ReplaceAllString(s, " ")
	s = anyTagRe.ReplaceAllString(s, " ")
	for _, e := range knownEntities {
		s = strings.ReplaceAll(s, e.from, e.to)
	}
	s = entityRe.ReplaceAllString(s, " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ContainsAny reports whether lower contains any of the needles. Callers pass
// already lower-cased text; needles are compared lower-cased.
func ContainsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

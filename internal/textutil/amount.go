package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// amountRule formats the submatches of Pattern into a display amount.
type amountRule struct {
	Name    string
	Pattern *regexp.Regexp
	Format  func(m []string) string
}

func withSuffix(prefix string) func(m []string) string {
	return func(m []string) string {
		out := prefix + m[1]
		if len(m) > 2 && m[2] != "" {
			out += " " + m[2]
		}
		return out
	}
}

func prefixed(prefix, suffix string) func(m []string) string {
	return func(m []string) string { return prefix + m[1] + suffix }
}

// amountRules run in priority order; the first match wins.
var amountRules = []amountRule{
	{"crore", regexp.MustCompile(`(?i)₹?\s*(\d[\d,.]*)\s*(?:crore|cr)\b`), prefixed("₹", " Crore")},
	{"lakh", regexp.MustCompile(`(?i)₹?\s*(\d[\d,.]*)\s*(?:lakh|lac)\b`), prefixed("₹", " Lakh")},
	{"inr", regexp.MustCompile(`(?i)(?:INR|₹)\s*(\d[\d,.]+)`), prefixed("₹", "")},
	{"usd", regexp.MustCompile(`(?i)(\d[\d,.]+)\s*(?:USD|US\s*Dollar)`), prefixed("$", "")},
	{"dollar", regexp.MustCompile(`(?i)\$\s*(\d[\d,.]*)\s*(million|m\b|billion|b\b|thousand|k\b)?`), withSuffix("$")},
	{"eur-code", regexp.MustCompile(`(?i)€?\s*(\d[\d,.]+)\s*(?:EUR|Euro)`), prefixed("€", "")},
	{"eur-sign", regexp.MustCompile(`(?i)€\s*(\d[\d,.]*)\s*(million|m\b)?`), withSuffix("€")},
	{"gbp", regexp.MustCompile(`(?i)(\d[\d,.]+)\s*(?:GBP|Pound)`), prefixed("£", "")},
	{"jpy", regexp.MustCompile(`(?i)(\d[\d,.]+)\s*(?:JPY|Yen)`), prefixed("¥", "")},
}

// ExtractAmount finds a currency amount in free text. When nothing matches, a
// short text (under 60 characters) containing a digit is returned verbatim.
func ExtractAmount(text string) *string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil
	}
	for _, r := range amountRules {
		if m := r.Pattern.FindStringSubmatch(cleaned); m != nil {
			out := r.Format(m)
			return &out
		}
	}
	n := utf8.RuneCountInString(cleaned)
	if n > 1 && n < 60 && strings.ContainsAny(cleaned, "0123456789") {
		return &cleaned
	}
	return nil
}

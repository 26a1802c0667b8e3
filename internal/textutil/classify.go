package textutil

import (
	"regexp"
	"strings"
)

// TagRule labels text matching Pattern. Patterns run against lower-cased text.
type TagRule struct {
	Label   string
	Pattern *regexp.Regexp
}

// FallbackTag is emitted when no TagRule fires.
const FallbackTag = "Education"

// TagRules is evaluated top to bottom; the order is the display order of tags.
var TagRules = []TagRule{
	{"EdTech", regexp.MustCompile(`edtech|ed-tech|digital\s+learning|ict|technology`)},
	{"FLN / Foundational Literacy", regexp.MustCompile(`fln|foundational\s+lit|foundational\s+num|foundational\s+learn`)},
	{"Teacher Training", regexp.MustCompile(`teacher|educator|pedagog`)},
	{"Early Childhood", regexp.MustCompile(`early\s+childhood|ecce|anganwadi|pre-?school`)},
	{"School Governance", regexp.MustCompile(`school\s+governance|school\s+management|school\s+leader`)},
	{"Classroom Instruction", regexp.MustCompile(`classroom|instruction|curriculum`)},
	{"High Potential Students", regexp.MustCompile(`high\s+potential|gifted|talent`)},
}

// ExtractTags returns every label whose rule matches, never an empty slice.
func ExtractTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, r := range TagRules {
		if r.Pattern.MatchString(lower) {
			tags = append(tags, r.Label)
		}
	}
	if len(tags) == 0 {
		tags = []string{FallbackTag}
	}
	return tags
}

// IndiaLabel is the location used when no specific state is named.
const IndiaLabel = "India"

// States lists the Indian states plus Delhi in scan order. First match wins.
var States = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh",
	"Goa", "Gujarat", "Haryana", "Himachal Pradesh", "Jharkhand",
	"Karnataka", "Kerala", "Madhya Pradesh", "Maharashtra", "Manipur",
	"Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab",
	"Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura",
	"Uttar Pradesh", "Uttarakhand", "West Bengal", "Delhi",
}

// ExtractLocation returns the first state named in text, "India" when the
// text mentions india or national scope, or nil.
func ExtractLocation(text string) *string {
	lower := strings.ToLower(text)
	for _, s := range States {
		if strings.Contains(lower, strings.ToLower(s)) {
			state := s
			return &state
		}
	}
	if strings.Contains(lower, "india") || strings.Contains(lower, "national") {
		india := IndiaLabel
		return &india
	}
	return nil
}

// IsState reports whether name is one of States, case-insensitively.
func IsState(name string) bool {
	for _, s := range States {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

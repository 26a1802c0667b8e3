// Package relevance decides whether a candidate opportunity is in scope:
// about education, about India, not stale and not about another country.
package relevance

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

// Keywords is the externally configured vocabulary of the filter.
type Keywords struct {
	IndiaMarkers     []string `yaml:"india_markers"`
	EducationPhrases []string `yaml:"education_phrases"`
	// EducationTokens are short words matched only on word boundaries so that
	// "stem" does not fire inside "ecosystem".
	EducationTokens  []string `yaml:"education_tokens"`
	ForeignCountries []string `yaml:"foreign_countries"`
	NegativeKeywords []string `yaml:"negative_keywords"`
	RecencyMonths    int      `yaml:"recency_months"`
}

// Reason explains why a candidate was rejected.
type Reason string

const (
	Accepted        Reason = ""
	Stale           Reason = "stale"
	Foreign         Reason = "foreign"
	NegativeKeyword Reason = "negative_keyword"
	OffTopic        Reason = "off_topic"
	OffGeography    Reason = "off_geography"
)

// Filter evaluates the predicates for one run. It is safe for concurrent use.
type Filter struct {
	kw       Keywords
	tokensRe *regexp.Regexp
	cutoff   string
}

// New builds a Filter whose recency cutoff is computed from now.
func New(kw Keywords, now time.Time) (*Filter, error) {
	if kw.RecencyMonths <= 0 {
		kw.RecencyMonths = 3
	}
	f := &Filter{kw: kw, cutoff: now.AddDate(0, -kw.RecencyMonths, 0).Format("2006-01-02")}
	if len(kw.EducationTokens) > 0 {
		quoted := make([]string, len(kw.EducationTokens))
		for i, t := range kw.EducationTokens {
			quoted[i] = regexp.QuoteMeta(strings.ToLower(t))
		}
		re, err := regexp.Compile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile education tokens: %w", err)
		}
		f.tokensRe = re
	}
	return f, nil
}

// Cutoff is the oldest deadline (YYYY-MM-DD) still considered live.
func (f *Filter) Cutoff() string { return f.cutoff }

// ─── Predicates ──────────────────────────────────────────────────────────────

// IsGeographyRelevant looks for India markers in title, description, location and tags.
func (f *Filter) IsGeographyRelevant(o model.RawOpportunity) bool {
	text := strings.ToLower(o.Title + " " + o.Description + " " + model.Deref(o.Location) + " " + strings.Join(o.Tags, " "))
	return textutil.ContainsAny(text, f.kw.IndiaMarkers)
}

// IsTopicRelevant checks title and description only. Tags are produced by
// our own extractors and would make every item look relevant.
func (f *Filter) IsTopicRelevant(o model.RawOpportunity) bool {
	return f.IsTopicText(o.Title + " " + o.Description)
}

// IsTopicText applies the education vocabulary to arbitrary text.
func (f *Filter) IsTopicText(text string) bool {
	lower := strings.ToLower(text)
	if textutil.ContainsAny(lower, f.kw.EducationPhrases) {
		return true
	}
	return f.tokensRe != nil && f.tokensRe.MatchString(lower)
}

// IsExplicitlyForeign is true when the title names a foreign country and no
// India marker. Only the title is inspected.
func (f *Filter) IsExplicitlyForeign(o model.RawOpportunity) bool {
	title := strings.ToLower(o.Title)
	if textutil.ContainsAny(title, f.kw.IndiaMarkers) {
		return false
	}
	return textutil.ContainsAny(title, f.kw.ForeignCountries)
}

// HasNegativeKeyword is true when the title carries a disqualifying term and
// the item is not independently about education.
func (f *Filter) HasNegativeKeyword(o model.RawOpportunity) bool {
	if !textutil.ContainsAny(strings.ToLower(o.Title), f.kw.NegativeKeywords) {
		return false
	}
	return !f.IsTopicRelevant(o)
}

// IsWithinRecencyWindow passes items with no deadline or a deadline on or
// after the cutoff.
func (f *Filter) IsWithinRecencyWindow(o model.RawOpportunity) bool {
	if o.Deadline == nil || *o.Deadline == "" {
		return true
	}
	return *o.Deadline >= f.cutoff
}

// ─── Policy ──────────────────────────────────────────────────────────────────

// Evaluate applies the source's policy to one candidate and returns Accepted
// or the first failing reason.
func (f *Filter) Evaluate(src model.Source, o model.RawOpportunity) Reason {
	if !f.IsWithinRecencyWindow(o) {
		return Stale
	}
	if f.IsExplicitlyForeign(o) {
		return Foreign
	}
	if f.HasNegativeKeyword(o) {
		return NegativeKeyword
	}

	switch src.Policy {
	case model.PolicyPreFiltered:
		return Accepted
	case model.PolicyGeographyTrusted:
		if f.categoriesOnTopic(src.Categories) || f.categoriesOnTopic(o.Categories) || f.IsTopicRelevant(o) {
			return Accepted
		}
		return OffTopic
	case model.PolicyTopicTrusted:
		if f.IsGeographyRelevant(o) {
			return Accepted
		}
		return OffGeography
	default:
		if !f.IsTopicRelevant(o) {
			return OffTopic
		}
		if !f.IsGeographyRelevant(o) {
			return OffGeography
		}
		return Accepted
	}
}

func (f *Filter) categoriesOnTopic(cats []string) bool {
	return len(cats) > 0 && f.IsTopicText(strings.Join(cats, " "))
}

// Package model defines shared data structures for the discovery service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// RawOpportunity is a normalised funding opportunity produced by an extractor,
// before it is scored. Nullable columns are pointers and always serialise,
// as null when absent.
type RawOpportunity struct {
	Title        string   `json:"title" validate:"required"`
	SourceURL    string   `json:"source_url" validate:"required,startswith=http"`
	Description  string   `json:"description"`
	Deadline     *string  `json:"deadline"` // YYYY-MM-DD; nil means rolling
	PocEmail     *string  `json:"poc_email"`
	Tags         []string `json:"tags"`
	Organisation *string  `json:"organisation"`
	Amount       *string  `json:"amount"`
	Location     *string  `json:"location"` // a state name or "India"

	// Categories carries the source's own labels for the item (RSS <category>).
	// Not persisted.
	Categories []string `json:"-"`
}

// DbOpportunity is the persisted shape: a RawOpportunity plus its base score.
type DbOpportunity struct {
	RawOpportunity
	RelevanceScore int `json:"relevance_score"`
}

// StoredOpportunity is a row read back from the opportunities table.
type StoredOpportunity struct {
	DbOpportunity
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CsrRecord is one row of company CSR spend per development field and fiscal year.
type CsrRecord struct {
	Company    string  `json:"company" validate:"required"`
	CIN        string  `json:"cin" validate:"required"`
	Field      string  `json:"field" validate:"required"`
	SpendINR   float64 `json:"spend_inr"`
	FiscalYear string  `json:"fiscal_year" validate:"required"`
}

// Key is the natural key (cin, field, fiscal_year), case-folded.
func (c CsrRecord) Key() string {
	return strings.ToLower(c.CIN) + "|" + strings.ToLower(c.Field) + "|" + c.FiscalYear
}

// Subscriber is a digest recipient. UnsubscribeToken is the secret carried
// by the unsubscribe link.
type Subscriber struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	UnsubscribeToken string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// ─── Sources ─────────────────────────────────────────────────────────────────

// Policy decides which relevance predicates run for items of a source.
type Policy string

const (
	// PolicyPreFiltered sources already filter topic and geography themselves.
	PolicyPreFiltered Policy = "prefiltered"
	// PolicyGeographyTrusted sources are inherently India-scoped.
	PolicyGeographyTrusted Policy = "geography_trusted"
	// PolicyTopicTrusted sources publish only education items.
	PolicyTopicTrusted Policy = "topic_trusted"
	// PolicyGeneral sources need both topic and geography checks.
	PolicyGeneral Policy = "general"
)

// ParsePolicy validates a policy name. An empty name means PolicyGeneral.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyGeneral, nil
	case PolicyPreFiltered, PolicyGeographyTrusted, PolicyTopicTrusted, PolicyGeneral:
		return p, nil
	default:
		return "", fmt.Errorf("unknown source policy %q", s)
	}
}

// UnmarshalYAML lets catalogue files spell the policy as a plain string.
func (p *Policy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Source is one configured origin of opportunities.
type Source struct {
	Name          string            `yaml:"name" validate:"required"`
	URL           string            `yaml:"url" validate:"required,url"`
	Parser        string            `yaml:"parser" validate:"required"`
	Policy        Policy            `yaml:"policy"`
	EnrichDetails bool              `yaml:"enrich_details"`
	Categories    []string          `yaml:"categories"` // the source's own topical scope
	Queries       []string          `yaml:"queries"`    // for search-API parsers
	Options       map[string]string `yaml:"options"`
}

// Option returns a parser option or def when unset.
func (s Source) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Nullable returns nil for blank strings.
func Nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

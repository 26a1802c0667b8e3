// Package scoring computes the 0–100 base relevance score of an opportunity
// and the read-time decay applied to it.
package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

// Weights are the points awarded per signal and the display thresholds.
type Weights struct {
	Sector          int `yaml:"sector"`
	Geography       int `yaml:"geography"`
	FundingSize     int `yaml:"funding_size"`
	KnownFunder     int `yaml:"known_funder"`
	Duration        int `yaml:"duration"`
	DecayPerWeek    int `yaml:"decay_per_week"`
	HighThreshold   int `yaml:"high_threshold"`
	MediumThreshold int `yaml:"medium_threshold"`
}

// Config is the scoring section of the catalogue.
type Config struct {
	Sectors        []string `yaml:"sectors"`
	PriorityStates []string `yaml:"priority_states"`
	KnownFunders   []string `yaml:"known_funders"`
	Weights        Weights  `yaml:"weights"`
}

const MaxScore = 100

var (
	croreCountRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:crore|cr)`)
	millionRe      = regexp.MustCompile(`(?i)(?:\$|£|€)\s*(\d[\d,.]*)\s*(?:million|m\b)`)
	durationYearRe = regexp.MustCompile(`(?i)(\d+)\s*(?:year|yr)`)
)

// Scorer is a pure function object over a fixed Config.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.WithDefaults()}
}

// Weights returns the effective weights.
func (s *Scorer) Weights() Weights { return s.cfg.Weights }

// Score sums the independent awards and caps the total at MaxScore.
func (s *Scorer) Score(o model.RawOpportunity) int {
	w := s.cfg.Weights
	text := strings.ToLower(o.Title + " " + o.Description + " " + strings.Join(o.Tags, " "))
	score := 0

	if textutil.ContainsAny(text, s.cfg.Sectors) {
		score += w.Sector
	}

	loc := strings.ToLower(model.Deref(o.Location))
	if textutil.ContainsAny(text, s.cfg.PriorityStates) || textutil.ContainsAny(loc, s.cfg.PriorityStates) {
		score += w.Geography
	}

	if hasFundingSignal(model.Deref(o.Amount) + " " + text) {
		score += w.FundingSize
	}

	orgText := strings.ToLower(model.Deref(o.Organisation) + " " + o.Title)
	if textutil.ContainsAny(orgText, s.cfg.KnownFunders) {
		score += w.KnownFunder
	}

	if m := durationYearRe.FindStringSubmatch(text); m != nil && atoi(m[1]) >= 2 {
		score += w.Duration
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// hasFundingSignal matches "N crore" with N ≥ 1 (first mention only) or any
// "$/£/€ N million".
func hasFundingSignal(text string) bool {
	if m := croreCountRe.FindStringSubmatch(text); m != nil && atoi(m[1]) >= 1 {
		return true
	}
	return millionRe.MatchString(text)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// ─── Decay ───────────────────────────────────────────────────────────────────

const week = 7 * 24 * time.Hour

// DisplayScore subtracts perWeek points per full week since createdAt and
// never goes below zero. Timestamps in the future count as no elapsed time.
func DisplayScore(base int, createdAt, now time.Time, perWeek int) int {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	weeks := int(elapsed / week)
	v := base - weeks*perWeek
	if v < 0 {
		return 0
	}
	return v
}

// DisplayScore applies the scorer's configured decay rate.
func (s *Scorer) DisplayScore(base int, createdAt, now time.Time) int {
	return DisplayScore(base, createdAt, now, s.cfg.Weights.DecayPerWeek)
}

// Level buckets a score for display.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

func (s *Scorer) Level(score int) Level {
	switch {
	case score >= s.cfg.Weights.HighThreshold:
		return LevelHigh
	case score >= s.cfg.Weights.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

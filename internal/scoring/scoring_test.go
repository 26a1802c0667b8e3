package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/scoring"
)

func fixture() model.RawOpportunity {
	return model.RawOpportunity{
		Title:        "Foundational literacy programme in Punjab",
		SourceURL:    "https://example.org/fln",
		Description:  "Support of 5 crore over 3 years for government schools.",
		Tags:         []string{"FLN / Foundational Literacy"},
		Organisation: model.Nullable("Local NGO"),
	}
}

func TestScoreCompositionExample(t *testing.T) {
	s := scoring.New(scoring.DefaultConfig())
	assert.Equal(t, 85, s.Score(fixture()))
}

func TestScoreIsDeterministic(t *testing.T) {
	s := scoring.New(scoring.DefaultConfig())
	o := fixture()
	assert.Equal(t, s.Score(o), s.Score(o))
}

func TestScoreKnownFunderReachesCap(t *testing.T) {
	s := scoring.New(scoring.DefaultConfig())
	o := fixture()
	o.Organisation = model.Nullable("Tata Trusts")
	assert.Equal(t, 100, s.Score(o))
}

func TestScoreIsCapped(t *testing.T) {
	cfg := scoring.DefaultConfig()
	cfg.Weights.Sector = 90
	s := scoring.New(cfg)
	assert.Equal(t, scoring.MaxScore, s.Score(fixture()))
}

func TestScoreSignals(t *testing.T) {
	s := scoring.New(scoring.DefaultConfig())
	base := model.RawOpportunity{Title: "Community water project", Description: "", Tags: []string{}}

	tests := []struct {
		name string
		mut  func(o *model.RawOpportunity)
		want int
	}{
		{"nothing", func(o *model.RawOpportunity) {}, 0},
		{"sector via tags", func(o *model.RawOpportunity) { o.Tags = []string{"EdTech"} }, 30},
		{"state via location only", func(o *model.RawOpportunity) { o.Location = model.Nullable("Odisha") }, 20},
		{"zero crore is not funding", func(o *model.RawOpportunity) { o.Description = "0 crore" }, 0},
		{"million in amount field", func(o *model.RawOpportunity) { o.Amount = model.Nullable("$2 million") }, 20},
		{"one year is not multi-year", func(o *model.RawOpportunity) { o.Description = "a 1 year pilot" }, 0},
		{"two years", func(o *model.RawOpportunity) { o.Description = "runs 2 yrs" }, 15},
		{"funder in title", func(o *model.RawOpportunity) { o.Title = "UNICEF water project" }, 15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := base
			tc.mut(&o)
			got := s.Score(o)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestDisplayScoreDecay(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	assert.Equal(t, 80, scoring.DisplayScore(80, now, now, 5))
	assert.Equal(t, 80, scoring.DisplayScore(80, now.Add(-6*day), now, 5))
	assert.Equal(t, 75, scoring.DisplayScore(80, now.Add(-7*day), now, 5))
	assert.Equal(t, 70, scoring.DisplayScore(80, now.Add(-20*day), now, 5))
	assert.Equal(t, 0, scoring.DisplayScore(80, now.Add(-365*day), now, 5))
	assert.Equal(t, 80, scoring.DisplayScore(80, now.Add(day), now, 5))
}

func TestDisplayScoreMonotonic(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	prev := scoring.DisplayScore(90, now, now, 5)
	for d := 1; d <= 200; d++ {
		cur := scoring.DisplayScore(90, now.Add(-time.Duration(d)*24*time.Hour), now, 5)
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0)
		prev = cur
	}
}

func TestLevel(t *testing.T) {
	s := scoring.New(scoring.DefaultConfig())
	assert.Equal(t, scoring.LevelHigh, s.Level(75))
	assert.Equal(t, scoring.LevelMedium, s.Level(74))
	assert.Equal(t, scoring.LevelMedium, s.Level(50))
	assert.Equal(t, scoring.LevelLow, s.Level(49))
}

func TestWithDefaultsKeepsCustomWeights(t *testing.T) {
	cfg := scoring.Config{Weights: scoring.Weights{Sector: 1}}
	s := scoring.New(cfg)
	assert.Equal(t, 1, s.Weights().Sector)
	assert.Equal(t, 0, s.Weights().Geography)
}

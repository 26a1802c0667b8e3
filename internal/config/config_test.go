package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scouted/discovery-service/internal/config"
	"scouted/discovery-service/internal/model"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load()
	assert.EqualError(t, err, "DATABASE_URL is required")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scouted")
	t.Setenv("REDIS_URL", "")
	t.Setenv("SCRAPE_INTERVAL_HOURS", "")
	t.Setenv("UPSERT_BATCH_SIZE", "")
	t.Setenv("DISCOVERY_PORT", "")
	t.Setenv("RESEND_DOMAIN_VERIFIED", "TRUE")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 24, cfg.ScrapeIntervalHours)
	assert.Equal(t, 50, cfg.UpsertBatchSize)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.ResendDomainVerified)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scouted")
	t.Setenv("SCRAPE_INTERVAL_HOURS", "0")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestEmbeddedCatalog(t *testing.T) {
	c, err := config.LoadCatalog("")
	require.NoError(t, err)

	require.NotEmpty(t, c.Sources)
	assert.Equal(t, "ngobox", c.Sources[0].Parser)
	assert.Equal(t, model.PolicyGeographyTrusted, c.Sources[0].Policy)
	assert.NotEmpty(t, c.Keywords.IndiaMarkers)
	assert.Equal(t, 3, c.Keywords.RecencyMonths)
	assert.Equal(t, 30, c.Scoring.Weights.Sector)
	assert.NotEmpty(t, c.Scoring.KnownFunders)

	for _, s := range c.Sources {
		if s.Parser == "google-cse" {
			assert.Len(t, s.Queries, 8)
		}
		if s.Name == "FundsForNGOs India" {
			assert.Equal(t, model.PolicyGeographyTrusted, s.Policy, "topic check still applies")
		}
	}
}

func TestCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: One
    url: https://one.example.org/feed
    parser: idr
keywords:
  foreign_countries: [atlantis]
scoring:
  priority_states: [Goa]
`), 0o600))

	c, err := config.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Sources, 1)
	assert.Equal(t, model.PolicyGeneral, c.Sources[0].Policy)
	assert.Equal(t, []string{"atlantis"}, c.Keywords.ForeignCountries)
	assert.Equal(t, []string{"Goa"}, c.Scoring.PriorityStates)
	assert.Equal(t, 5, c.Scoring.Weights.DecayPerWeek)
}

func TestCatalogValidation(t *testing.T) {
	tests := map[string]string{
		"no sources":     "sources: []\n",
		"missing parser": "sources:\n  - name: a\n    url: https://a.org\n",
		"bad url":        "sources:\n  - name: a\n    url: not-a-url\n    parser: idr\n",
		"bad policy":     "sources:\n  - name: a\n    url: https://a.org\n    parser: idr\n    policy: maybe\n",
		"duplicate name": "sources:\n  - {name: a, url: https://a.org, parser: idr}\n  - {name: a, url: https://b.org, parser: idr}\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseCatalog([]byte(raw))
			assert.Error(t, err)
		})
	}
}

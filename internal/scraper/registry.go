// Package scraper turns external listing pages, feeds and search APIs into
// normalised opportunity records.
package scraper

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	titleLimit       = 300
	listingDescLimit = 1000
	fullDescLimit    = 2000
)

// Extractor turns one configured source into candidate opportunities.
// A non-2xx response from the source yields an empty result, not an error.
type Extractor interface {
	Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, src model.Source) ([]model.RawOpportunity, error)

func (f ExtractorFunc) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	return f(ctx, src)
}

// Registry maps parser keys to extractors.
type Registry struct {
	byKey map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Extractor)}
}

func (r *Registry) Register(key string, e Extractor) {
	r.byKey[key] = e
}

func (r *Registry) Lookup(key string) (Extractor, bool) {
	e, ok := r.byKey[key]
	return e, ok
}

// Keys lists registered parser keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deps are the collaborators shared by the built-in extractors.
type Deps struct {
	Log             *logger.Logger
	Fetcher         *Fetcher
	InsecureFetcher *Fetcher // for sources with broken TLS
	Sleep           SleepFunc
	GoogleCSEKey    string
	GoogleCSEID     string
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Fetcher == nil {
		d.Fetcher = NewFetcher(&http.Client{Timeout: httpTimeout})
	}
	if d.InsecureFetcher == nil {
		d.InsecureFetcher = NewInsecureFetcher(20 * time.Second)
	}
	if d.Sleep == nil {
		d.Sleep = Sleep
	}
	return d
}

// DefaultRegistry registers every built-in parser key.
func DefaultRegistry(d Deps) *Registry {
	d = d.withDefaults()
	r := NewRegistry()
	r.Register("ngobox", NewNgoBoxGrants(d))
	r.Register("ngobox-rfp", NewNgoBoxRFP(d))
	r.Register("fundsforngos", NewFundsForNGOs(d))
	r.Register("idr", NewIDR(d))
	r.Register("alliance", NewAlliance(d))
	r.Register("devex", NewDevex(d))
	r.Register("google-cse", NewGoogleCSE(d))
	r.Register("grants-gov", NewGrantsGov(d))
	r.Register("govuk-fcdo", NewGovUK(d))
	r.Register("csrbox", NewCSRBox(d))
	return r
}

// ─── Shared helpers ──────────────────────────────────────────────────────────

// skipOnStatus turns a non-2xx response into an empty result after logging.
// Other errors are returned so the caller can record a source failure.
func skipOnStatus(log *logger.Logger, src model.Source, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		log.Warn("source returned non-success status, skipping", "source", src.Name, "status", se.Code)
		return nil
	}
	return err
}

// finish enforces field limits and the non-empty tags invariant.
func finish(o model.RawOpportunity, descLimit int) model.RawOpportunity {
	o.Title = textutil.Truncate(strings.TrimSpace(o.Title), titleLimit)
	o.Description = textutil.Truncate(strings.TrimSpace(o.Description), descLimit)
	if o.Description == "" {
		o.Description = o.Title
	}
	if len(o.Tags) == 0 {
		o.Tags = []string{textutil.FallbackTag}
	}
	return o
}

func str(s string) *string { return &s }

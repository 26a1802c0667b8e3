package scraper

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

var (
	mailtoRe          = regexp.MustCompile(`(?i)mailto:([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
	contentContainers = []string{"div.entry-content", "article", "div[class*=content]", "main"}
)

const (
	minParagraphRunes = 30
	minBodyRunes      = 50
)

// EnrichOptions bound the detail-page pass.
type EnrichOptions struct {
	MaxItems   int
	BatchSize  int
	BatchDelay time.Duration
	Timeout    time.Duration
}

// DefaultEnrichOptions: 30 items, batches of 3, 1s apart, 10s per page.
func DefaultEnrichOptions() EnrichOptions {
	return EnrichOptions{MaxItems: 30, BatchSize: 3, BatchDelay: time.Second, Timeout: 10 * time.Second}
}

// Enricher fetches each candidate's detail page for a fuller description and
// a contact email. It never drops or reorders records.
type Enricher struct {
	log   *logger.Logger
	fetch *Fetcher
	sleep SleepFunc
	opts  EnrichOptions
}

func NewEnricher(d Deps, opts EnrichOptions) *Enricher {
	d = d.withDefaults()
	def := DefaultEnrichOptions()
	if opts.MaxItems <= 0 {
		opts.MaxItems = def.MaxItems
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = def.BatchDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Enricher{log: d.Log.With("component", "enricher"), fetch: d.Fetcher, sleep: d.Sleep, opts: opts}
}

// Enrich returns opps with the first MaxItems records possibly improved.
func (e *Enricher) Enrich(ctx context.Context, opps []model.RawOpportunity) []model.RawOpportunity {
	out := make([]model.RawOpportunity, len(opps))
	copy(out, opps)

	n := len(out)
	if n > e.opts.MaxItems {
		n = e.opts.MaxItems
	}
	enriched := 0

	for start := 0; start < n; start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > n {
			end = n
		}

		var g errgroup.Group
		changed := make([]bool, end-start)
		for i := start; i < end; i++ {
			g.Go(func() error {
				changed[i-start] = e.enrichOne(ctx, &out[i])
				return nil
			})
		}
		_ = g.Wait()
		for _, c := range changed {
			if c {
				enriched++
			}
		}

		if end < n {
			if err := e.sleep(ctx, e.opts.BatchDelay); err != nil {
				break
			}
		}
	}

	e.log.Debug("enrichment complete", "candidates", n, "enriched", enriched, "passed_through", len(out)-n)
	return out
}

// enrichOne updates o in place from its detail page. Any failure leaves o
// untouched.
func (e *Enricher) enrichOne(ctx context.Context, o *model.RawOpportunity) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	body, err := e.fetch.Get(ctx, o.SourceURL, nil)
	if err != nil {
		e.log.Debug("detail fetch failed", "url", o.SourceURL, "error", err)
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	changed := false
	if text := mainText(doc); utf8.RuneCountInString(text) > minBodyRunes && text != o.Title {
		o.Description = textutil.Truncate(text, fullDescLimit)
		changed = true
	}
	if o.PocEmail == nil {
		if m := mailtoRe.FindSubmatch(body); m != nil {
			o.PocEmail = str(string(m[1]))
			changed = true
		}
	}
	return changed
}

// mainText returns the first matching content container's text, or failing
// that the page's substantial paragraphs joined.
func mainText(doc *goquery.Document) string {
	for _, sel := range contentContainers {
		if c := doc.Find(sel).First(); c.Length() > 0 {
			h, err := c.Html()
			if err != nil {
				return ""
			}
			return textutil.StripTags(h)
		}
	}

	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		h, _ := p.Html()
		if t := textutil.StripTags(h); utf8.RuneCountInString(t) > minParagraphRunes {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

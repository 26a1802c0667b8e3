package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	cseQueryDelay     = 500 * time.Millisecond
	grantsGovDetail   = "https://www.grants.gov/search-results-detail/"
	govukBase         = "https://www.gov.uk"
	govukOrganisation = "foreign-commonwealth-development-office"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// ─── Google Custom Search ────────────────────────────────────────────────────

// GoogleCSE runs the source's curated queries against the Custom Search JSON
// API. A 429 ends the run for this source; other failures skip one query.
type GoogleCSE struct {
	log   *logger.Logger
	fetch *Fetcher
	sleep SleepFunc
	key   string
	cx    string
}

func NewGoogleCSE(d Deps) *GoogleCSE {
	d = d.withDefaults()
	return &GoogleCSE{
		log:   d.Log.With("component", "scraper", "parser", "google-cse"),
		fetch: d.Fetcher,
		sleep: d.Sleep,
		key:   d.GoogleCSEKey,
		cx:    d.GoogleCSEID,
	}
}

type cseResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
		Pagemap     struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

func (p *GoogleCSE) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	if p.key == "" || p.cx == "" {
		p.log.Info("GOOGLE_CSE_API_KEY or GOOGLE_CSE_ID not set, skipping", "source", src.Name)
		return nil, nil
	}

	var out []model.RawOpportunity
	for i, q := range src.Queries {
		if i > 0 {
			if err := p.sleep(ctx, cseQueryDelay); err != nil {
				return textutil.Dedup(out), err
			}
		}

		params := url.Values{
			"key":          {p.key},
			"cx":           {p.cx},
			"q":            {q},
			"dateRestrict": {"d7"},
			"gl":           {"in"},
			"num":          {"10"},
		}
		body, err := p.fetch.Get(ctx, src.URL+"?"+params.Encode(), headers("Accept", acceptJSON))
		if err != nil {
			if StatusCode(err) == http.StatusTooManyRequests {
				p.log.Warn("rate limited, stopping queries", "source", src.Name, "query", q)
				break
			}
			p.log.Warn("query failed", "source", src.Name, "query", q, "status", StatusCode(err), "error", err)
			continue
		}

		var resp cseResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			p.log.Warn("malformed response", "source", src.Name, "query", q, "error", err)
			continue
		}
		for _, it := range resp.Items {
			if it.Title == "" || it.Link == "" {
				continue
			}
			text := it.Title + " " + it.Snippet
			desc := it.Title
			if it.Snippet != "" {
				desc = it.Snippet
			}
			if mt := it.Pagemap.Metatags; len(mt) > 0 && mt[0]["og:description"] != "" {
				desc = mt[0]["og:description"]
			}
			out = append(out, finish(model.RawOpportunity{
				Title:        it.Title,
				SourceURL:    it.Link,
				Description:  textutil.StripTags(desc),
				Tags:         textutil.ExtractTags(text),
				Organisation: model.Nullable(it.DisplayLink),
				Amount:       textutil.ExtractAmount(text),
				Location:     textutil.ExtractLocation(text),
			}, fullDescLimit))
		}
	}

	p.log.Debug("queries done", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

// ─── Grants.gov ──────────────────────────────────────────────────────────────

// GrantsGov searches US federal opportunities and keeps hits that mention
// both India (or the region) and education.
type GrantsGov struct {
	log   *logger.Logger
	fetch *Fetcher
}

func NewGrantsGov(d Deps) *GrantsGov {
	d = d.withDefaults()
	return &GrantsGov{log: d.Log.With("component", "scraper", "parser", "grants-gov"), fetch: d.Fetcher}
}

type grantsGovRequest struct {
	Keyword     string `json:"keyword"`
	OppStatuses string `json:"oppStatuses"`
	Rows        int    `json:"rows"`
	SortBy      string `json:"sortBy"`
}

type grantsGovResponse struct {
	OppHits []struct {
		ID           json.Number `json:"id"`
		OppTitle     string      `json:"oppTitle"`
		Description  string      `json:"description"`
		CloseDate    string      `json:"closeDate"`
		AwardCeiling float64     `json:"awardCeiling"`
		AgencyCode   string      `json:"agencyCode"`
	} `json:"oppHits"`
}

func (p *GrantsGov) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	var out []model.RawOpportunity
	for _, q := range src.Queries {
		req := grantsGovRequest{Keyword: q, OppStatuses: "forecasted|posted", Rows: 50, SortBy: "openDate|desc"}
		body, err := p.fetch.PostJSON(ctx, src.URL, req, headers("Accept", acceptJSON))
		if err != nil {
			p.log.Warn("search failed", "source", src.Name, "query", q, "status", StatusCode(err), "error", err)
			continue
		}
		var resp grantsGovResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			p.log.Warn("malformed response", "source", src.Name, "query", q, "error", err)
			continue
		}

		for _, hit := range resp.OppHits {
			text := hit.OppTitle + " " + hit.Description
			if hit.OppTitle == "" || hit.ID == "" || !matchesAll(text, apiIndiaWords, apiEducationWords) {
				continue
			}
			var deadline *string
			if hit.CloseDate != "" {
				deadline = textutil.ParseDate(hit.CloseDate)
			}
			amount := textutil.ExtractAmount(text)
			if hit.AwardCeiling > 0 {
				amount = str(usd.Sprintf("$%d", int64(hit.AwardCeiling)))
			}
			org := hit.AgencyCode
			if org == "" {
				org = "US Federal"
			}
			out = append(out, finish(model.RawOpportunity{
				Title:        hit.OppTitle,
				SourceURL:    grantsGovDetail + hit.ID.String(),
				Description:  hit.Description,
				Deadline:     deadline,
				Tags:         textutil.ExtractTags(text),
				Organisation: &org,
				Amount:       amount,
				Location:     textutil.ExtractLocation(text),
			}, fullDescLimit))
		}
	}

	p.log.Debug("queries done", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

// ─── GOV.UK FCDO ─────────────────────────────────────────────────────────────

// GovUK searches FCDO publications on GOV.UK with the same India and
// education post-filter as GrantsGov. Results carry no deadline.
type GovUK struct {
	log   *logger.Logger
	fetch *Fetcher
}

func NewGovUK(d Deps) *GovUK {
	d = d.withDefaults()
	return &GovUK{log: d.Log.With("component", "scraper", "parser", "govuk-fcdo"), fetch: d.Fetcher}
}

type govukResponse struct {
	Results []struct {
		Title         string `json:"title"`
		Description   string `json:"description"`
		Link          string `json:"link"`
		Organisations []struct {
			Title string `json:"title"`
		} `json:"organisations"`
	} `json:"results"`
}

func (p *GovUK) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	queries := src.Queries
	if len(queries) == 0 {
		queries = []string{"education india"}
	}

	var out []model.RawOpportunity
	for _, q := range queries {
		params := url.Values{
			"filter_organisations": {govukOrganisation},
			"q":                    {q},
			"count":                {"50"},
		}
		body, err := p.fetch.Get(ctx, src.URL+"?"+params.Encode(),
			headers("Accept", acceptJSON, "User-Agent", aggregatorUA))
		if err != nil {
			if err := skipOnStatus(p.log, src, err); err != nil {
				return textutil.Dedup(out), fmt.Errorf("govuk search: %w", err)
			}
			continue
		}
		var resp govukResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			p.log.Warn("malformed response", "source", src.Name, "error", err)
			continue
		}

		for _, r := range resp.Results {
			text := r.Title + " " + r.Description
			if r.Title == "" || r.Link == "" || !matchesAll(text, apiIndiaWords, apiEducationWords) {
				continue
			}
			link := r.Link
			if !strings.HasPrefix(link, "http") {
				link = govukBase + link
			}
			org := "FCDO"
			if len(r.Organisations) > 0 && r.Organisations[0].Title != "" {
				org = r.Organisations[0].Title
			}
			out = append(out, finish(model.RawOpportunity{
				Title:        r.Title,
				SourceURL:    link,
				Description:  r.Description,
				Tags:         textutil.ExtractTags(text),
				Organisation: &org,
				Amount:       textutil.ExtractAmount(text),
				Location:     textutil.ExtractLocation(text),
			}, fullDescLimit))
		}
	}

	p.log.Debug("search done", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

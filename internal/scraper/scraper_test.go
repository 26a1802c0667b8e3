package scraper_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/scraper"
)

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

func testDeps(srv *httptest.Server, sleep *sleepRecorder) scraper.Deps {
	f := scraper.NewFetcher(srv.Client())
	return scraper.Deps{Fetcher: f, InsecureFetcher: f, Sleep: sleep.Sleep}
}

func TestDefaultRegistryKeys(t *testing.T) {
	r := scraper.DefaultRegistry(scraper.Deps{})
	assert.Equal(t, []string{
		"alliance", "csrbox", "devex", "fundsforngos", "google-cse",
		"govuk-fcdo", "grants-gov", "idr", "ngobox", "ngobox-rfp",
	}, r.Keys())

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

// ─── NGOBox ──────────────────────────────────────────────────────────────────

const ngoboxPage1 = `<html><body><script>var total_page = 3;</script>
<div class="item"><a href="https://ngobox.org/full_grant_announcement_101">Grant for foundational literacy in Bihar</a>
<p>Pratham Education Foundation</p><p><strong>Grant Amount:</strong> INR 50 Lakh</p><p><strong>Deadline:</strong> 15 March 2026</p></div>
<div class="item"><a href="/full_grant_announcement_102">Teacher training fellowship programme</a><p>Short</p></div>
<a href="https://ngobox.org/full_grant_announcement_103">Too short</a>
</body></html>`

const ngoboxPage2 = `<html><body>
<a href="https://ngobox.org/full_grant_announcement_201">Scholarship for girls in Odisha schools</a><p>Deadline: 1 April 2026</p>
</body></html>`

func TestNgoBoxPaginationStopsAtFailedPage(t *testing.T) {
	var page3 atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprint(w, ngoboxPage1)
		case "2":
			fmt.Fprint(w, ngoboxPage2)
		default:
			page3.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	src := model.Source{Name: "NGOBox", URL: srv.URL + "/grant_announcement_listing.php", Parser: "ngobox"}
	got, err := scraper.NewNgoBoxGrants(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.EqualValues(t, 1, page3.Load())

	first := got[0]
	assert.Equal(t, "Grant for foundational literacy in Bihar", first.Title)
	assert.Equal(t, "https://ngobox.org/full_grant_announcement_101", first.SourceURL)
	assert.Equal(t, "2026-03-15", model.Deref(first.Deadline))
	assert.Equal(t, "₹50 Lakh", model.Deref(first.Amount))
	assert.Equal(t, "Pratham Education Foundation", model.Deref(first.Organisation))
	assert.Equal(t, "Bihar", model.Deref(first.Location))
	assert.Contains(t, first.Tags, "FLN / Foundational Literacy")

	assert.Equal(t, "https://ngobox.org/full_grant_announcement_102", got[1].SourceURL)
	assert.Nil(t, got[1].Deadline)
	assert.Nil(t, got[1].Amount)

	assert.Equal(t, "Scholarship for girls in Odisha schools", got[2].Title)
	assert.Equal(t, "2026-04-01", model.Deref(got[2].Deadline))
	assert.Equal(t, "Odisha", model.Deref(got[2].Location))
}

func TestNonSuccessStatusYieldsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	deps := testDeps(srv, &sleepRecorder{})
	src := model.Source{Name: "down", URL: srv.URL + "/feed"}
	for key, ex := range map[string]scraper.Extractor{
		"ngobox":       scraper.NewNgoBoxGrants(deps),
		"fundsforngos": scraper.NewFundsForNGOs(deps),
		"idr":          scraper.NewIDR(deps),
		"devex":        scraper.NewDevex(deps),
	} {
		t.Run(key, func(t *testing.T) {
			got, err := ex.Extract(context.Background(), src)
			assert.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

// ─── FundsForNGOs ────────────────────────────────────────────────────────────

const ffnPage = `<html><body>
<article><h2 class="entry-title"><a href="https://www2.fundsforngos.org/latest-funds-for-ngos/education-grant/">Call for proposals: School education in Rajasthan</a></h2>
<div class="entry-content"><p>Deadline: 14-Jan-2026 Support for literacy projects.</p></div></article>
<article><h2><a href="https://www2.fundsforngos.org/health/clinic-support/">Clinic support fund</a></h2>
<div class="entry-content"><p>Deadline: Ongoing Health clinics.</p></div></article>
</body></html>`

func TestFundsForNGOs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ffnPage)
	}))
	defer srv.Close()
	ex := scraper.NewFundsForNGOs(testDeps(srv, &sleepRecorder{}))

	all, err := ex.Extract(context.Background(), model.Source{Name: "ffn", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2026-01-14", model.Deref(all[0].Deadline))
	assert.Equal(t, "Rajasthan", model.Deref(all[0].Location))
	assert.Equal(t, "FundsForNGOs", model.Deref(all[0].Organisation))
	assert.Nil(t, all[1].Deadline, "ongoing deadline is rolling")

	edu, err := ex.Extract(context.Background(), model.Source{
		Name: "ffn india", URL: srv.URL, Options: map[string]string{"education_only": "true"},
	})
	require.NoError(t, err)
	require.Len(t, edu, 1)
	assert.Equal(t, all[0].SourceURL, edu[0].SourceURL)
}

// ─── Feeds ───────────────────────────────────────────────────────────────────

const idrFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel><title>IDR</title><link>https://idronline.org</link><description>x</description>
<item><title>CSR funding for schools in Kerala</title><link>https://idronline.org/a</link>
<description>A foundation grant supports classrooms</description>
<content:encoded><![CDATA[<p>Full <b>article</b> body about the grant.</p>]]></content:encoded>
<category>Education</category></item>
<item><title>Why teachers matter</title><link>https://idronline.org/b</link>
<description>An essay on pedagogy</description><category>Opinion</category></item>
<item><title>Philanthropy pledge for literacy</title><link>https://idronline.org/c</link>
<description>New pledge</description></item>
</channel></rss>`

func TestIDRKeepsFundingItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, idrFeed)
	}))
	defer srv.Close()

	got, err := scraper.NewIDR(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), model.Source{Name: "idr", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Full article body about the grant.", got[0].Description)
	assert.Equal(t, "Kerala", model.Deref(got[0].Location))
	assert.Equal(t, []string{"Education"}, got[0].Categories)
	assert.Nil(t, got[0].Deadline)

	assert.Equal(t, "https://idronline.org/c", got[1].SourceURL)
	assert.Equal(t, "India", model.Deref(got[1].Location))
	assert.Equal(t, "New pledge", got[1].Description)
}

// ─── Search APIs ─────────────────────────────────────────────────────────────

func TestGoogleCSEStopsOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "d7", r.URL.Query().Get("dateRestrict"))
		if n > 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{{
				"title":       "Education grant for Assam schools",
				"link":        "https://example.org/assam",
				"snippet":     "Short snippet",
				"displayLink": "example.org",
				"pagemap": map[string]interface{}{
					"metatags": []map[string]string{{"og:description": "Richer <b>description</b> from og tags"}},
				},
			}},
		})
	}))
	defer srv.Close()

	sleep := &sleepRecorder{}
	deps := testDeps(srv, sleep)
	deps.GoogleCSEKey, deps.GoogleCSEID = "key", "cx"
	src := model.Source{Name: "cse", URL: srv.URL, Queries: []string{"q1", "q2", "q3"}}

	got, err := scraper.NewGoogleCSE(deps).Extract(context.Background(), src)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleep.calls)

	require.Len(t, got, 1)
	assert.Equal(t, "Richer description from og tags", got[0].Description)
	assert.Equal(t, "example.org", model.Deref(got[0].Organisation))
	assert.Equal(t, "Assam", model.Deref(got[0].Location))
}

func TestGoogleCSESkipsWithoutCredentials(t *testing.T) {
	got, err := scraper.NewGoogleCSE(scraper.Deps{}).Extract(context.Background(),
		model.Source{Name: "cse", URL: "http://127.0.0.1:1", Queries: []string{"q"}})
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestGrantsGovPostFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "forecasted|posted", req["oppStatuses"])

		fmt.Fprint(w, `{"oppHits":[
			{"id":"355036","oppTitle":"Basic education in India","description":"Improve school learning outcomes","closeDate":"03/15/2026","awardCeiling":600000,"agencyCode":"USAID"},
			{"id":"355037","oppTitle":"Rural health in Kenya","description":"Clinics","closeDate":"","awardCeiling":0,"agencyCode":""}
		]}`)
	}))
	defer srv.Close()

	src := model.Source{Name: "gg", URL: srv.URL, Queries: []string{"education India", "education South Asia"}}
	got, err := scraper.NewGrantsGov(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, "https://www.grants.gov/search-results-detail/355036", o.SourceURL)
	assert.Equal(t, "$600,000", model.Deref(o.Amount))
	assert.Equal(t, "2026-03-15", model.Deref(o.Deadline))
	assert.Equal(t, "USAID", model.Deref(o.Organisation))
}

func TestGovUKRelativeLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "foreign-commonwealth-development-office", r.URL.Query().Get("filter_organisations"))
		fmt.Fprint(w, `{"results":[
			{"title":"Girls education programme in India","description":"Funding for schools","link":"/government/news/girls-education"},
			{"title":"Trade envoy visit","description":"Trade","link":"/government/news/trade"}
		]}`)
	}))
	defer srv.Close()

	got, err := scraper.NewGovUK(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), model.Source{Name: "fcdo", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.gov.uk/government/news/girls-education", got[0].SourceURL)
	assert.Equal(t, "FCDO", model.Deref(got[0].Organisation))
}

// ─── CSRBox ──────────────────────────────────────────────────────────────────

const csrRows = `<tr class="item"><td>1</td><td><a href="/project/42">Digital classrooms</a></td>
<td><input type="submit" value="Acme Ltd"></td><td>Education</td><td>INR 5.30 Cr</td><td><a>Karnataka</a></td></tr>
<tr class="item"><td>2</td><td><a href="/project/43">Library books</a></td>
<td><a>Small Co</a></td><td>Education</td><td>INR 0.08 Cr</td><td>NA</td></tr>`

func TestCSRBoxAjax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("tab") == "2023-24" && r.PostForm.Get("page") == "1" {
			assert.Equal(t, []string{"1-5", "5-10", "10-25", "25"}, r.PostForm["projects[]"])
			fmt.Fprint(w, csrRows)
		}
	}))
	defer srv.Close()

	src := model.Source{
		Name: "csrbox", URL: srv.URL + "/listing",
		Options: map[string]string{"ajax_url": srv.URL + "/ajax"},
	}
	got, err := scraper.NewCSRBox(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 1)

	o := got[0]
	assert.Equal(t, "Acme Ltd — Digital classrooms", o.Title)
	assert.Equal(t, "https://csrbox.org/project/42", o.SourceURL)
	assert.Equal(t, "₹5.30 Crore", model.Deref(o.Amount))
	assert.Equal(t, "Karnataka", model.Deref(o.Location))
	assert.Equal(t, "Education. Budget: INR 5.30 Cr. Location: Karnataka.", o.Description)
	assert.Equal(t, "CSR", o.Tags[len(o.Tags)-1])
}

// ─── Enricher ────────────────────────────────────────────────────────────────

func TestEnricherBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok", "/beyond-cap":
			fmt.Fprint(w, `<html><body><div class="entry-content"><p>This programme funds teacher training across twenty districts for three years.</p></div>
<a href="mailto:grants@example.org">Contact</a></body></html>`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	opps := []model.RawOpportunity{
		{Title: "ok", SourceURL: srv.URL + "/ok", Description: "short"},
		{Title: "fail", SourceURL: srv.URL + "/fail", Description: "short"},
		{Title: "beyond", SourceURL: srv.URL + "/beyond-cap", Description: "short"},
	}
	sleep := &sleepRecorder{}
	e := scraper.NewEnricher(testDeps(srv, sleep), scraper.EnrichOptions{MaxItems: 2, BatchSize: 1, BatchDelay: time.Second})
	got := e.Enrich(context.Background(), opps)

	require.Len(t, got, 3)
	assert.Equal(t, "This programme funds teacher training across twenty districts for three years.", got[0].Description)
	assert.Equal(t, "grants@example.org", model.Deref(got[0].PocEmail))
	assert.Equal(t, opps[1], got[1])
	assert.Equal(t, opps[2], got[2])
	assert.Equal(t, []time.Duration{time.Second}, sleep.calls)
	assert.Equal(t, "short", opps[0].Description, "input slice untouched")
}

func TestEnricherDefaultsBatchDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opps := []model.RawOpportunity{
		{Title: "a", SourceURL: srv.URL + "/a", Description: "short"},
		{Title: "b", SourceURL: srv.URL + "/b", Description: "short"},
	}
	sleep := &sleepRecorder{}
	got := scraper.NewEnricher(testDeps(srv, sleep), scraper.EnrichOptions{MaxItems: 2, BatchSize: 1}).Enrich(context.Background(), opps)

	assert.Equal(t, opps, got)
	assert.Equal(t, []time.Duration{time.Second}, sleep.calls)
}

// ─── NGOBox: page cap and RFP listing ────────────────────────────────────────

func TestNgoBoxPaginationCapsAtFivePages(t *testing.T) {
	var extraPages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" {
			fmt.Fprint(w, `<html><script>var total_page = '9';</script>
<a href="/full_grant_announcement_1">School grant round 1</a></html>`)
			return
		}
		extraPages.Add(1)
		fmt.Fprintf(w, `<html><a href="/full_grant_announcement_%s">School grant round %s</a></html>`, page, page)
	}))
	defer srv.Close()

	src := model.Source{Name: "NGOBox", URL: srv.URL + "/grant_announcement_listing.php", Parser: "ngobox"}
	got, err := scraper.NewNgoBoxGrants(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)

	assert.EqualValues(t, 4, extraPages.Load())
	require.Len(t, got, 5)
	assert.Equal(t, "https://ngobox.org/full_grant_announcement_5", got[4].SourceURL)
}

const ngoboxRFPPage = `<html><body>
<a href="https://ngobox.org/full_grant_announcement_9">A grant listed on the RFP page</a>
<div><a href="https://ngobox.org/full_rfp_eoi_501">RFP for teacher training evaluation in Assam</a>
<p>Deadline: 30 June 2026</p><p>Grant Amount: INR 10 Lakh</p></div>
<a href="/full_rfp_eoi_502">EOI: Baseline study of school libraries</a><p>Save the Children</p>
</body></html>`

func TestNgoBoxRFP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ngoboxRFPPage)
	}))
	defer srv.Close()

	src := model.Source{Name: "NGOBox RFP", URL: srv.URL + "/rfp_eoi_listing", Parser: "ngobox-rfp"}
	got, err := scraper.NewNgoBoxRFP(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "RFP for teacher training evaluation in Assam", first.Title)
	assert.Equal(t, "https://ngobox.org/full_rfp_eoi_501", first.SourceURL)
	assert.Equal(t, "2026-06-30", model.Deref(first.Deadline))
	assert.Nil(t, first.Amount, "RFP listings carry no amount")
	assert.Equal(t, "NGOBox RFP", model.Deref(first.Organisation))
	assert.Equal(t, "Assam", model.Deref(first.Location))
	assert.Contains(t, first.Tags, "Teacher Training")

	assert.Equal(t, "https://ngobox.org/full_rfp_eoi_502", got[1].SourceURL)
	assert.Equal(t, "Save the Children", model.Deref(got[1].Organisation))
}

// ─── Alliance and Devex ──────────────────────────────────────────────────────

const allianceFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Alliance</title><link>https://www.alliancemagazine.org</link><description>x</description>
<item><title>Foundation commits to education in India</title><link>https://www.alliancemagazine.org/a</link>
<description>A new fund for schools</description></item>
<item><title>Climate funding in Brazil</title><link>https://www.alliancemagazine.org/b</link>
<description>Rainforest grants</description></item>
</channel></rss>`

const allianceSearch = `<html><body>
<article><h2 class="entry-title"><a href="https://www.alliancemagazine.org/s1">CSR giving for Indian classrooms</a></h2>
<div class="entry-summary">Companies expand school support.</div></article>
<article><h3><a href="https://www.alliancemagazine.org/a">Foundation commits to education in India</a></h3><p>Search copy</p></article>
<article><p>No link here</p></article>
</body></html>`

func TestAllianceMergesFeedAndSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed":
			fmt.Fprint(w, allianceFeed)
		case "/search":
			fmt.Fprint(w, allianceSearch)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := model.Source{
		Name: "alliance", URL: srv.URL + "/feed", Parser: "alliance",
		Options: map[string]string{"search_url": srv.URL + "/search"},
	}
	got, err := scraper.NewAlliance(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "https://www.alliancemagazine.org/a", got[0].SourceURL)
	assert.Equal(t, "A new fund for schools", got[0].Description, "feed record wins over the search duplicate")
	assert.Equal(t, "Alliance Magazine", model.Deref(got[0].Organisation))
	assert.Equal(t, "India", model.Deref(got[0].Location))

	assert.Equal(t, "https://www.alliancemagazine.org/s1", got[1].SourceURL)
	assert.Equal(t, "CSR giving for Indian classrooms", got[1].Title)
	assert.Equal(t, "Companies expand school support.", got[1].Description)
}

func TestAllianceSearchSurvivesFeedOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			fmt.Fprint(w, allianceSearch)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := model.Source{
		Name: "alliance", URL: srv.URL + "/feed", Parser: "alliance",
		Options: map[string]string{"search_url": srv.URL + "/search"},
	}
	got, err := scraper.NewAlliance(testDeps(srv, &sleepRecorder{})).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Search copy", got[1].Description)
}

func devexServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Devex</title><link>https://www.devex.com</link><description>x</description>
<item><title>Foundation pledges $5 million for schools in India</title><link>%[1]s/article-1</link>
<description>Funding for education in Delhi</description></item>
<item><title>India literacy grant announced</title><link>%[1]s/article-2</link>
<description><![CDATA[<p>Feed text only</p>]]></description></item>
<item><title>Road building in Peru</title><link>%[1]s/article-3</link>
<description>Infrastructure loan</description></item>
</channel></rss>`, srv.URL)
		case "/article-1":
			fmt.Fprint(w, `<html><head><script type="application/ld+json">{"@type":"NewsArticle","description":"Full JSON-LD description of the pledge."}</script></head></html>`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	return srv
}

func TestDevexUsesJSONLDAndFallsBackToFeedText(t *testing.T) {
	srv := devexServer(t)
	defer srv.Close()

	sleep := &sleepRecorder{}
	src := model.Source{
		Name: "devex", URL: srv.URL + "/feed", Parser: "devex",
		Options: map[string]string{"crawl_delay": "2s"},
	}
	got, err := scraper.NewDevex(testDeps(srv, sleep)).Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Full JSON-LD description of the pledge.", got[0].Description)
	assert.Equal(t, "Devex", model.Deref(got[0].Organisation))
	assert.Equal(t, "Feed text only", got[1].Description, "paywalled article falls back to feed text")
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleep.calls)
}

func TestDevexDefaultCrawlDelay(t *testing.T) {
	srv := devexServer(t)
	defer srv.Close()

	sleep := &sleepRecorder{}
	src := model.Source{
		Name: "devex", URL: srv.URL + "/feed", Parser: "devex",
		Options: map[string]string{"crawl_delay": "soon"},
	}
	_, err := scraper.NewDevex(testDeps(srv, sleep)).Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleep.calls)
}

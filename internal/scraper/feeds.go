package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	devexCrawlDelay  = 10 * time.Second
	devexPageTimeout = 15 * time.Second
)

var jsonLDRe = regexp.MustCompile(`(?is)<script[^>]*type=["']application/ld\+json["'][^>]*>(.*?)</script>`)

// fetchFeed downloads and parses an RSS/Atom document. A non-2xx status
// surfaces as *StatusError.
func fetchFeed(ctx context.Context, f *Fetcher, feedURL string) (*gofeed.Feed, error) {
	body, err := f.Get(ctx, feedURL, headers("User-Agent", aggregatorUA, "Accept", acceptFeed))
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// itemBody prefers content:encoded over description, both stripped of markup.
func itemBody(it *gofeed.Item) string {
	if c := strings.TrimSpace(it.Content); c != "" {
		return textutil.StripTags(c)
	}
	return textutil.StripTags(it.Description)
}

// ─── IDR ─────────────────────────────────────────────────────────────────────

// IDR reads one India Development Review feed and keeps items that signal
// funding activity rather than plain commentary.
type IDR struct {
	log   *logger.Logger
	fetch *Fetcher
}

func NewIDR(d Deps) *IDR {
	d = d.withDefaults()
	return &IDR{log: d.Log.With("component", "scraper", "parser", "idr"), fetch: d.Fetcher}
}

func (p *IDR) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	feed, err := fetchFeed(ctx, p.fetch, src.URL)
	if err != nil {
		return nil, skipOnStatus(p.log, src, err)
	}

	var out []model.RawOpportunity
	for _, it := range feed.Items {
		title, link := strings.TrimSpace(it.Title), strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			continue
		}
		text := title + " " + it.Description + " " + strings.Join(it.Categories, " ")
		if !matchesAll(text, fundingIntentWords) {
			continue
		}

		loc := textutil.ExtractLocation(text)
		if loc == nil {
			loc = str(textutil.IndiaLabel)
		}
		out = append(out, finish(model.RawOpportunity{
			Title:        title,
			SourceURL:    link,
			Description:  itemBody(it),
			Tags:         textutil.ExtractTags(text),
			Organisation: str("IDR"),
			Amount:       textutil.ExtractAmount(text),
			Location:     loc,
			Categories:   it.Categories,
		}, fullDescLimit))
	}

	p.log.Debug("parsed feed", "source", src.Name, "items", len(feed.Items), "kept", len(out))
	return textutil.Dedup(out), nil
}

// ─── Alliance Magazine ───────────────────────────────────────────────────────

// Alliance combines the magazine's RSS feed with its WordPress search page
// (option search_url). Feed items must mention India and an education or
// funding term; search hits are taken as-is.
type Alliance struct {
	log   *logger.Logger
	fetch *Fetcher
}

func NewAlliance(d Deps) *Alliance {
	d = d.withDefaults()
	return &Alliance{log: d.Log.With("component", "scraper", "parser", "alliance"), fetch: d.Fetcher}
}

func (p *Alliance) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	var out []model.RawOpportunity

	feed, err := fetchFeed(ctx, p.fetch, src.URL)
	switch {
	case err == nil:
		for _, it := range feed.Items {
			title, link := strings.TrimSpace(it.Title), strings.TrimSpace(it.Link)
			if title == "" || link == "" {
				continue
			}
			text := title + " " + it.Description + " " + strings.Join(it.Categories, " ")
			if !matchesAll(text, allianceIndiaWords, feedEducationFundingWords) {
				continue
			}
			out = append(out, p.record(title, link, itemBody(it), text, it.Categories))
		}
	default:
		p.log.Warn("feed unavailable", "source", src.Name, "error", err)
	}

	if searchURL := src.Option("search_url", ""); searchURL != "" {
		hits, err := p.search(ctx, searchURL)
		if err != nil {
			p.log.Warn("search page unavailable", "source", src.Name, "error", err)
		}
		out = append(out, hits...)
	}

	p.log.Debug("parsed feed and search", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

func (p *Alliance) search(ctx context.Context, searchURL string) ([]model.RawOpportunity, error) {
	body, err := p.fetch.Get(ctx, searchURL, headers("User-Agent", aggregatorUA))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var out []model.RawOpportunity
	doc.Find("article, .post, .entry, .search-result").Each(func(_ int, el *goquery.Selection) {
		a := el.Find("h2 a, h3 a, .entry-title a").First()
		title := strings.TrimSpace(a.Text())
		link, _ := a.Attr("href")
		if title == "" || link == "" {
			return
		}
		excerpt := strings.TrimSpace(el.Find(".entry-summary, .entry-content, .excerpt, p").First().Text())
		out = append(out, p.record(title, link, excerpt, title+" "+excerpt, nil))
	})
	return out, nil
}

func (p *Alliance) record(title, link, desc, text string, cats []string) model.RawOpportunity {
	return finish(model.RawOpportunity{
		Title:        title,
		SourceURL:    link,
		Description:  desc,
		Tags:         textutil.ExtractTags(text),
		Organisation: str("Alliance Magazine"),
		Amount:       textutil.ExtractAmount(text),
		Location:     textutil.ExtractLocation(text),
		Categories:   cats,
	}, fullDescLimit)
}

// ─── Devex ───────────────────────────────────────────────────────────────────

// Devex filters the news feed to India plus education/funding items, then
// visits each article (honouring the crawl_delay option) for its JSON-LD
// description. Article pages are paywalled, so the feed text is the fallback.
type Devex struct {
	log   *logger.Logger
	fetch *Fetcher
	sleep SleepFunc
}

func NewDevex(d Deps) *Devex {
	d = d.withDefaults()
	return &Devex{log: d.Log.With("component", "scraper", "parser", "devex"), fetch: d.Fetcher, sleep: d.Sleep}
}

type jsonLD struct {
	Type        interface{} `json:"@type"`
	Description string      `json:"description"`
}

func (p *Devex) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	feed, err := fetchFeed(ctx, p.fetch, src.URL)
	if err != nil {
		return nil, skipOnStatus(p.log, src, err)
	}

	delay := devexCrawlDelay
	if v := src.Option("crawl_delay", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			delay = d
		}
	}

	var out []model.RawOpportunity
	for _, it := range feed.Items {
		title, link := strings.TrimSpace(it.Title), strings.TrimSpace(it.Link)
		if title == "" || link == "" || !matchesAll(title+" "+it.Description, feedIndiaWords, feedEducationFundingWords) {
			continue
		}
		if err := p.sleep(ctx, delay); err != nil {
			return textutil.Dedup(out), err
		}

		desc := p.articleDescription(ctx, link)
		if desc == "" {
			desc = textutil.StripTags(it.Description)
		}
		text := title + " " + desc
		out = append(out, finish(model.RawOpportunity{
			Title:        title,
			SourceURL:    link,
			Description:  desc,
			Tags:         textutil.ExtractTags(text),
			Organisation: str("Devex"),
			Amount:       textutil.ExtractAmount(text),
			Location:     textutil.ExtractLocation(text),
			Categories:   it.Categories,
		}, fullDescLimit))
	}

	p.log.Debug("parsed feed", "source", src.Name, "items", len(feed.Items), "kept", len(out))
	return textutil.Dedup(out), nil
}

// articleDescription returns the JSON-LD description of an article page, or
// "" on any failure.
func (p *Devex) articleDescription(ctx context.Context, link string) string {
	ctx, cancel := context.WithTimeout(ctx, devexPageTimeout)
	defer cancel()

	body, err := p.fetch.Get(ctx, link, headers("User-Agent", aggregatorUA))
	if err != nil {
		p.log.Debug("article fetch failed, using feed text", "url", link, "error", err)
		return ""
	}
	m := jsonLDRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	var ld jsonLD
	if err := json.Unmarshal(m[1], &ld); err != nil {
		return ""
	}
	switch t := ld.Type.(type) {
	case string:
		if t == "NewsArticle" || t == "Article" {
			return strings.TrimSpace(ld.Description)
		}
	}
	return ""
}

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

var (
	ffnDeadlineRe = regexp.MustCompile(`(?i)Deadline:\s*(\d{1,2}-\w{3}-\d{2,4})`)
	ffnOngoingRe  = regexp.MustCompile(`(?i)Deadline:\s*Ongoing`)
)

// FundsForNGOs parses the WordPress listing pages of fundsforngos.org.
// With option education_only=true (the India tag page) posts without an
// education keyword are dropped.
type FundsForNGOs struct {
	log   *logger.Logger
	fetch *Fetcher
}

func NewFundsForNGOs(d Deps) *FundsForNGOs {
	d = d.withDefaults()
	return &FundsForNGOs{log: d.Log.With("component", "scraper", "parser", "fundsforngos"), fetch: d.Fetcher}
}

func (f *FundsForNGOs) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	body, err := f.fetch.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, skipOnStatus(f.log, src, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	educationOnly := src.Option("education_only", "false") == "true"

	var out []model.RawOpportunity
	doc.Find("article, .entry, .type-post").Each(func(_ int, el *goquery.Selection) {
		a := el.Find("h2 a, h3 a, .entry-title a").First()
		title := strings.TrimSpace(a.Text())
		link, _ := a.Attr("href")
		if title == "" || link == "" {
			return
		}
		desc := strings.TrimSpace(el.Find(".entry-content p, .entry-summary p, .entry-content, p").First().Text())
		category := pathSegment(link, 3)
		text := title + " " + desc + " " + category

		if educationOnly && !matchesAll(text, listingEducationWords) {
			return
		}

		var deadline *string
		if !ffnOngoingRe.MatchString(desc) {
			if m := ffnDeadlineRe.FindStringSubmatch(desc); m != nil {
				deadline = textutil.ParseDate(m[1])
			}
		}

		out = append(out, finish(model.RawOpportunity{
			Title:        title,
			SourceURL:    link,
			Description:  desc,
			Deadline:     deadline,
			Tags:         textutil.ExtractTags(text),
			Organisation: str("FundsForNGOs"),
			Amount:       textutil.ExtractAmount(title + " " + desc),
			Location:     textutil.ExtractLocation(title + " " + desc),
		}, listingDescLimit))
	})

	f.log.Debug("parsed listing", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

// pathSegment returns the i-th non-empty "/"-separated part of link, where
// the scheme counts as part 0 and the host as part 1.
func pathSegment(link string, i int) string {
	var parts []string
	for _, p := range strings.Split(link, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

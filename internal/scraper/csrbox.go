package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	csrboxBase         = "https://csrbox.org/"
	csrboxMaxPages     = 3
	csrboxPageDelay    = time.Second
	csrboxMinBody      = 50
	csrboxMinCrore     = 1.0
	csrboxEducationSct = "15"
)

var (
	csrboxYearTabs  = []string{"2023-24", "2022-23", "2021-22", "Ongoing"}
	csrboxBudgetBkt = []string{"1-5", "5-10", "10-25", "25"}
	csrboxBudgetRe  = regexp.MustCompile(`(?i)([\d.]+)\s*Cr`)
)

// CSRBox scrapes education-sector CSR projects with a budget of at least
// ₹1 Crore. It filters server-side through the AJAX endpoint (option
// ajax_url) per year tab and falls back to the plain listing pages when that
// endpoint never answers. The site's certificate chain is broken, so it uses
// the insecure fetcher.
type CSRBox struct {
	log   *logger.Logger
	fetch *Fetcher
	sleep SleepFunc
}

func NewCSRBox(d Deps) *CSRBox {
	d = d.withDefaults()
	return &CSRBox{log: d.Log.With("component", "scraper", "parser", "csrbox"), fetch: d.InsecureFetcher, sleep: d.Sleep}
}

func (p *CSRBox) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	var out []model.RawOpportunity
	ajaxWorked := false

	if ajaxURL := src.Option("ajax_url", ""); ajaxURL != "" {
		hdr := headers("Accept", "text/html, */*", "Referer", src.URL)
		for _, tab := range csrboxYearTabs {
			for page := 1; page <= csrboxMaxPages; page++ {
				form := url.Values{
					"page":       {strconv.Itoa(page)},
					"tab":        {tab},
					"sct[]":      {csrboxEducationSct},
					"projects[]": csrboxBudgetBkt,
				}
				body, err := p.fetch.PostForm(ctx, ajaxURL, form, hdr)
				if err != nil {
					p.log.Debug("ajax page failed", "tab", tab, "page", page, "error", err)
					break
				}
				if len(strings.TrimSpace(string(body))) < csrboxMinBody {
					break
				}
				ajaxWorked = true

				rows := parseCSRRows(body)
				p.log.Debug("ajax page parsed", "tab", tab, "page", page, "rows", len(rows))
				if len(rows) == 0 {
					break
				}
				out = append(out, rows...)
				if err := p.sleep(ctx, csrboxPageDelay); err != nil {
					return textutil.Dedup(out), err
				}
			}
		}
	}

	if !ajaxWorked {
		p.log.Info("ajax endpoint unavailable, scraping listing pages", "source", src.Name)
		for page := 1; page <= csrboxMaxPages; page++ {
			body, err := p.fetch.Get(ctx, withPage(src.URL, page), nil)
			if err != nil {
				if page == 1 {
					return nil, skipOnStatus(p.log, src, err)
				}
				break
			}
			rows := parseCSRRows(body)
			if len(rows) == 0 {
				break
			}
			out = append(out, rows...)
			if err := p.sleep(ctx, csrboxPageDelay); err != nil {
				return textutil.Dedup(out), err
			}
		}
	}

	p.log.Debug("parsed projects", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

// parseCSRRows reads a project table. Columns: hidden id, project, company,
// sector, budget, location.
func parseCSRRows(body []byte) []model.RawOpportunity {
	// AJAX responses are bare <tr> fragments, which an HTML parser drops
	// outside a table.
	if !bytes.Contains(bytes.ToLower(body), []byte("<table")) {
		body = append(append([]byte("<table>"), body...), "</table>"...)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []model.RawOpportunity
	doc.Find("tr.item").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		project := cells.Eq(1).Find("a").First()
		title := strings.TrimSpace(project.Text())
		href, _ := project.Attr("href")
		if len([]rune(title)) < 3 {
			return
		}

		companyEl := cells.Eq(2).Find("a, input[type=submit]").First()
		company, ok := companyEl.Attr("value")
		if !ok || company == "" {
			company = strings.TrimSpace(companyEl.Text())
		}
		sector := strings.TrimSpace(cells.Eq(3).Text())
		budget := strings.TrimSpace(cells.Eq(4).Text())

		var locText string
		if cells.Length() >= 6 {
			loc := cells.Eq(5)
			if locText = strings.TrimSpace(loc.Find("a").First().Text()); locText == "" {
				locText = strings.TrimSpace(loc.Text())
			}
		}

		m := csrboxBudgetRe.FindStringSubmatch(budget)
		if m == nil {
			return
		}
		crore, err := strconv.ParseFloat(m[1], 64)
		if err != nil || crore < csrboxMinCrore {
			return
		}

		display := title
		if company != "" {
			display = company + " — " + title
		}
		text := display + " " + sector + " " + locText

		where := locText
		if where == "" {
			where = textutil.IndiaLabel
		}
		loc := textutil.ExtractLocation(text)
		if loc == nil {
			loc = str(textutil.IndiaLabel)
		}
		org := company
		if org == "" {
			org = "CSRBox"
		}

		out = append(out, finish(model.RawOpportunity{
			Title:        display,
			SourceURL:    resolveURL(csrboxBase, href),
			Description:  fmt.Sprintf("%s. Budget: %s. Location: %s.", sector, budget, where),
			Tags:         append(textutil.ExtractTags(text), "CSR"),
			Organisation: &org,
			Amount:       str("₹" + m[1] + " Crore"),
			Location:     loc,
		}, fullDescLimit))
	})
	return out
}

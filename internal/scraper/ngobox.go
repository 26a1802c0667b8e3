package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	ngoboxBase       = "https://ngobox.org/"
	ngoboxMaxPages   = 5
	ngoboxBlockBytes = 2000
	ngoboxMinTitle   = 10
	ngoboxOrgLimit   = 80
)

var (
	ngoboxTotalPageRe  = regexp.MustCompile(`(?i)total_page\s*=\s*['"]?(\d+)`)
	ngoboxDeadlineRe   = regexp.MustCompile(`(?i)Deadline:\s*(\d{1,2}\s+\w+\.?\s+\d{4})`)
	ngoboxDeadlineHTML = regexp.MustCompile(`(?i)Deadline:</strong>\s*(\d{1,2}\s+\w+\.?\s+\d{4})`)
	ngoboxAmountHTML   = regexp.MustCompile(`(?i)Grant\s*Amount:</strong>\s*([^<\n]+)`)
	ngoboxAmountText   = regexp.MustCompile(`(?i)Grant\s*Amount:\s*(.+?)(?:\s+(?:Deadline:|Add to Google)|$)`)
	ngoboxOrgStopRe    = regexp.MustCompile(`(?i)Deadline:|Grant\s*Amount:|Add to Google|#st |\.stbtn|Fellowships|img\{`)
	ngoboxOrgNoiseRe   = regexp.MustCompile(`[-–|#{}]`)
)

// AnchorListing scrapes NGOBox-style pages that have no per-item wrapper:
// each item starts at an anchor whose href contains a fixed fragment, and the
// HTML up to the next such anchor is that item's metadata block.
type AnchorListing struct {
	log         *logger.Logger
	fetch       *Fetcher
	linkRe      *regexp.Regexp
	withAmount  bool
	fallbackOrg string
}

func newAnchorListing(d Deps, fragment, fallbackOrg string, withAmount bool) *AnchorListing {
	d = d.withDefaults()
	pattern := fmt.Sprintf(`(?is)<a\s[^>]*href=["']([^"']*%s[^"']*)["'][^>]*>(.*?)</a>`, regexp.QuoteMeta(fragment))
	return &AnchorListing{
		log:         d.Log.With("component", "scraper", "parser", strings.ToLower(strings.ReplaceAll(fallbackOrg, " ", "-"))),
		fetch:       d.Fetcher,
		linkRe:      regexp.MustCompile(pattern),
		withAmount:  withAmount,
		fallbackOrg: fallbackOrg,
	}
}

// NewNgoBoxGrants parses grant announcement listings.
func NewNgoBoxGrants(d Deps) *AnchorListing {
	return newAnchorListing(d, "full_grant_announcement_", "NGOBox", true)
}

// NewNgoBoxRFP parses RFP/EOI listings, which carry no amount.
func NewNgoBoxRFP(d Deps) *AnchorListing {
	return newAnchorListing(d, "full_rfp_eoi_", "NGOBox RFP", false)
}

func (a *AnchorListing) Extract(ctx context.Context, src model.Source) ([]model.RawOpportunity, error) {
	body, err := a.fetch.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, skipOnStatus(a.log, src, err)
	}
	html := string(body)
	out := a.parsePage(html)

	if strings.Contains(src.URL, "listing.php") {
		total := 1
		if m := ngoboxTotalPageRe.FindStringSubmatch(html); m != nil {
			total, _ = strconv.Atoi(m[1])
		}
		if total > ngoboxMaxPages {
			total = ngoboxMaxPages
		}
		for page := 2; page <= total; page++ {
			pageBody, err := a.fetch.Get(ctx, withPage(src.URL, page), nil)
			if err != nil {
				a.log.Warn("page fetch failed, keeping earlier pages", "source", src.Name, "page", page, "error", err)
				break
			}
			out = append(out, a.parsePage(string(pageBody))...)
		}
	}

	a.log.Debug("parsed listing", "source", src.Name, "items", len(out))
	return textutil.Dedup(out), nil
}

func (a *AnchorListing) parsePage(html string) []model.RawOpportunity {
	matches := a.linkRe.FindAllStringSubmatchIndex(html, -1)
	out := make([]model.RawOpportunity, 0, len(matches))

	for i, m := range matches {
		href := html[m[2]:m[3]]
		title := textutil.StripTags(html[m[4]:m[5]])
		if utf8.RuneCountInString(title) < ngoboxMinTitle {
			continue
		}

		start := m[1]
		end := start + ngoboxBlockBytes
		if i+1 < len(matches) && matches[i+1][0] < end {
			end = matches[i+1][0]
		}
		if end > len(html) {
			end = len(html)
		}
		blockHTML := html[start:end]
		blockText := textutil.StripTags(blockHTML)

		opp := model.RawOpportunity{
			Title:        title,
			SourceURL:    resolveURL(ngoboxBase, href),
			Description:  title,
			Deadline:     a.deadline(blockText, blockHTML),
			Tags:         textutil.ExtractTags(title),
			Organisation: a.organisation(blockText),
			Location:     textutil.ExtractLocation(title + " " + blockText),
		}
		if a.withAmount {
			opp.Amount = amountFromBlock(blockText, blockHTML)
		}
		out = append(out, finish(opp, listingDescLimit))
	}
	return out
}

func (a *AnchorListing) deadline(blockText, blockHTML string) *string {
	m := ngoboxDeadlineRe.FindStringSubmatch(blockText)
	if m == nil {
		m = ngoboxDeadlineHTML.FindStringSubmatch(blockHTML)
	}
	if m == nil {
		return nil
	}
	return textutil.ParseDate(m[1])
}

func amountFromBlock(blockText, blockHTML string) *string {
	m := ngoboxAmountHTML.FindStringSubmatch(blockHTML)
	if m == nil {
		m = ngoboxAmountText.FindStringSubmatch(blockText)
	}
	if m == nil {
		return nil
	}
	return textutil.ExtractAmount(m[1])
}

// organisation is the text before the first metadata label, stripped of
// share-widget noise.
func (a *AnchorListing) organisation(blockText string) *string {
	head := strings.TrimSpace(blockText)
	if loc := ngoboxOrgStopRe.FindStringIndex(head); loc != nil {
		head = head[:loc[0]]
	}
	head = ngoboxOrgNoiseRe.ReplaceAllString(head, "")
	head = strings.Join(strings.Fields(head), " ")
	head = textutil.Truncate(head, ngoboxOrgLimit)
	if utf8.RuneCountInString(head) > 3 {
		return &head
	}
	return str(a.fallbackOrg)
}

func withPage(rawURL string, page int) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", rawURL, sep, page)
}

// Package digest builds the daily opportunity digest and delivers it to
// subscribers by email. Scores are decayed at read time here, never in
// storage.
package digest

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/metrics"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/scoring"
	"scouted/discovery-service/internal/textutil"
)

const (
	DefaultWindow = 48 * time.Hour
	DefaultLimit  = 10

	// candidatePool bounds the rows fetched before decay reorders them.
	candidatePool = 50
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"colour": levelColour,
}).ParseFS(templateFS, "templates/*.html"))

// Source reads stored opportunities and subscribers. See db.Store.
type Source interface {
	RecentOpportunities(ctx context.Context, since time.Time, limit int) ([]model.StoredOpportunity, error)
	Subscribers(ctx context.Context) ([]model.Subscriber, error)
}

// Item is one digest line with its read-time score.
type Item struct {
	model.StoredOpportunity
	DisplayScore int
	Level        scoring.Level
}

// DeadlineLabel renders the deadline as "14 Jan 2026" or "No deadline".
func (it Item) DeadlineLabel() string {
	if it.Deadline == nil {
		return "No deadline"
	}
	d, err := time.Parse("2006-01-02", *it.Deadline)
	if err != nil {
		return *it.Deadline
	}
	return d.Format("2 Jan 2006")
}

// Summary is the description cut for display.
func (it Item) Summary() string {
	if len([]rune(it.Description)) <= 200 {
		return it.Description
	}
	return textutil.Truncate(it.Description, 200) + "..."
}

// TopTags is the first three tags joined for display.
func (it Item) TopTags() string {
	tags := it.Tags
	if len(tags) > 3 {
		tags = tags[:3]
	}
	return strings.Join(tags, " · ")
}

// Options configures a Builder.
type Options struct {
	Window         time.Duration
	Limit          int
	DashboardURL   string
	UnsubscribeURL string // token is appended; empty omits the link
	Now            func() time.Time
	Log            *logger.Logger
}

// Builder collects, renders and sends digests.
type Builder struct {
	src    Source
	scorer *scoring.Scorer
	mailer Mailer
	opts   Options
	log    *logger.Logger
}

// NewBuilder wires a Builder. mailer may be nil when only rendering.
func NewBuilder(src Source, scorer *scoring.Scorer, mailer Mailer, opts Options) *Builder {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.DashboardURL == "" {
		opts.DashboardURL = "https://scouted.whybe.ai"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Builder{src: src, scorer: scorer, mailer: mailer, opts: opts, log: opts.Log.With("component", "digest")}
}

// Collect returns the best opportunities first seen inside the window,
// ordered by decayed score.
func (b *Builder) Collect(ctx context.Context) ([]Item, error) {
	now := b.opts.Now()
	rows, err := b.src.RecentOpportunities(ctx, now.Add(-b.opts.Window), max(candidatePool, b.opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("fetch recent opportunities: %w", err)
	}
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		score := b.scorer.DisplayScore(r.RelevanceScore, r.CreatedAt, now)
		items = append(items, Item{StoredOpportunity: r, DisplayScore: score, Level: b.scorer.Level(score)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayScore > items[j].DisplayScore })
	if len(items) > b.opts.Limit {
		items = items[:b.opts.Limit]
	}
	return items, nil
}

// Result reports one Send call.
type Result struct {
	Opportunities int
	Recipients    int
	Sent          int
	Skipped       string // why nothing was sent
}

// Send mails the current digest to every subscriber. An empty window or an
// empty subscriber list is a skip, not an error.
func (b *Builder) Send(ctx context.Context) (Result, error) {
	if b.mailer == nil {
		return Result{}, fmt.Errorf("no mailer configured")
	}
	items, err := b.Collect(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Opportunities: len(items)}
	if len(items) == 0 {
		res.Skipped = fmt.Sprintf("no new opportunities in the last %s", humanWindow(b.opts.Window))
		b.log.Info("digest skipped", "reason", res.Skipped)
		return res, nil
	}

	subs, err := b.src.Subscribers(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch subscribers: %w", err)
	}
	res.Recipients = len(subs)
	if len(subs) == 0 {
		res.Skipped = "no subscribers"
		b.log.Info("digest skipped", "reason", res.Skipped)
		return res, nil
	}

	date := b.opts.Now().Format("Monday, 2 January 2006")
	emails := make([]Email, 0, len(subs))
	for _, s := range subs {
		html, err := b.RenderHTML(items, date, s.UnsubscribeToken)
		if err != nil {
			return res, err
		}
		emails = append(emails, Email{To: s.Email, Subject: "ScoutEd Digest: " + date, HTML: html})
	}

	b.log.Info("sending digest", "opportunities", len(items), "recipients", len(emails))
	res.Sent, err = b.mailer.SendBatch(ctx, emails)
	metrics.DigestsSent.Add(float64(res.Sent))
	if err != nil {
		return res, fmt.Errorf("send digest: %w", err)
	}
	return res, nil
}

type digestView struct {
	Date           string
	Items          []Item
	DashboardURL   string
	UnsubscribeURL string
}

// RenderHTML renders the email body for one recipient.
func (b *Builder) RenderHTML(items []Item, date, unsubscribeToken string) (string, error) {
	view := digestView{Date: date, Items: items, DashboardURL: b.opts.DashboardURL}
	if b.opts.UnsubscribeURL != "" && unsubscribeToken != "" {
		view.UnsubscribeURL = b.opts.UnsubscribeURL + unsubscribeToken
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "digest.html", view); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// RenderWelcome renders the subscription confirmation body.
func (b *Builder) RenderWelcome(email string) (string, error) {
	view := struct {
		Email, Since, DashboardURL string
	}{email, b.opts.Now().Format("2 January 2006"), b.opts.DashboardURL}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "welcome.html", view); err != nil {
		return "", fmt.Errorf("render welcome: %w", err)
	}
	return buf.String(), nil
}

// RenderText formats items as a chat-friendly plain-text digest.
func RenderText(items []Item, window time.Duration) string {
	var sb strings.Builder
	if len(items) == 0 {
		fmt.Fprintf(&sb, "No opportunities found in the last %s.\n", humanWindow(window))
		return sb.String()
	}
	fmt.Fprintf(&sb, "*ScoutEd Digest*: %d opportunities (last %s)\n\n", len(items), humanWindow(window))
	for i, it := range items {
		org := ""
		if it.Organisation != nil {
			org = " (" + *it.Organisation + ")"
		}
		fmt.Fprintf(&sb, "*%d. [%d] %s%s*\n", i+1, it.DisplayScore, it.Title, org)
		if len(it.Tags) > 0 {
			fmt.Fprintf(&sb, "   %s\n", strings.Join(it.Tags, ", "))
		}
		var meta []string
		if it.Location != nil {
			meta = append(meta, *it.Location)
		}
		if it.Amount != nil {
			meta = append(meta, *it.Amount)
		}
		if it.Deadline != nil {
			meta = append(meta, "Due: "+*it.Deadline)
		}
		if len(meta) > 0 {
			fmt.Fprintf(&sb, "   %s\n", strings.Join(meta, " | "))
		}
		fmt.Fprintf(&sb, "   %s\n\n", it.SourceURL)
	}
	return sb.String()
}

func humanWindow(d time.Duration) string {
	if days := int(d / (24 * time.Hour)); days >= 1 && d%(24*time.Hour) == 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}

func levelColour(l scoring.Level) string {
	switch l {
	case scoring.LevelHigh:
		return "#22c55e"
	case scoring.LevelMedium:
		return "#FFD400"
	default:
		return "#ef4444"
	}
}

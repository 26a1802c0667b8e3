// Package pipeline runs one ingestion cycle: every configured source is
// extracted, filtered and scored in order, the combined set is deduplicated
// and classified, and the survivors are upserted on source_url.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scouted/discovery-service/internal/classifier"
	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/metrics"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/relevance"
	"scouted/discovery-service/internal/scoring"
	"scouted/discovery-service/internal/scraper"
	"scouted/discovery-service/internal/textutil"
)

// ─── Collaborators ───────────────────────────────────────────────────────────

// Store persists scored opportunities. See db.Store.
type Store interface {
	UpsertOpportunities(ctx context.Context, opps []model.DbOpportunity, batchSize int) (int, error)
}

// EventPublisher announces a finished run. See db.RunEvents.
type EventPublisher interface {
	PublishRun(ctx context.Context, summary interface{}) error
}

// Enricher replaces listing descriptions with detail-page text.
type Enricher interface {
	Enrich(ctx context.Context, opps []model.RawOpportunity) []model.RawOpportunity
}

// Options wires an Orchestrator. Registry, Scorer and Store are required.
type Options struct {
	Sources    []model.Source
	Registry   *scraper.Registry
	Enricher   Enricher
	Keywords   relevance.Keywords
	Scorer     *scoring.Scorer
	Classifier *classifier.Classifier // nil or keyless disables classification
	Store      Store
	Events     EventPublisher // optional
	BatchSize  int
	Now        func() time.Time
	Log        *logger.Logger
}

// Orchestrator runs pipeline cycles. Runs must not overlap.
type Orchestrator struct {
	opts Options
	log  *logger.Logger
}

func New(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	return &Orchestrator{opts: opts, log: opts.Log.With("component", "pipeline")}
}

// ─── Run summary ─────────────────────────────────────────────────────────────

// SourceReport counts what one source contributed.
type SourceReport struct {
	Name     string  `json:"name"`
	Parser   string  `json:"parser"`
	Parsed   int     `json:"parsed"`
	Kept     int     `json:"kept"`
	Rejected int     `json:"rejected"`
	Seconds  float64 `json:"seconds"`
	Error    string  `json:"error,omitempty"`
}

// Summary describes one finished run. It is the payload of the run event.
type Summary struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Sources        []SourceReport `json:"sources"`
	Candidates     int            `json:"candidates"`
	Unique         int            `json:"unique"`
	Classified     int            `json:"classified"`
	QuotaExhausted bool           `json:"quota_exhausted,omitempty"`
	Upserted       int            `json:"upserted"`
	UpsertError    string         `json:"upsert_error,omitempty"`
}

// FailedSources lists sources whose extractor errored.
func (s Summary) FailedSources() []string {
	var out []string
	for _, r := range s.Sources {
		if r.Error != "" {
			out = append(out, r.Name)
		}
	}
	return out
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes one cycle. Source and storage failures are recorded in the
// summary; an error is returned only when the run could not start or ctx
// ended it early.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), StartedAt: o.opts.Now()}
	log := o.log.With("run_id", sum.RunID)

	filter, err := relevance.New(o.opts.Keywords, sum.StartedAt)
	if err != nil {
		return sum, fmt.Errorf("build relevance filter: %w", err)
	}
	log.Info("run started", "sources", len(o.opts.Sources), "recency_cutoff", filter.Cutoff())

	var combined []model.DbOpportunity
	for _, src := range o.opts.Sources {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run %s interrupted before %q: %w", sum.RunID, src.Name, err)
		}
		kept, rep := o.runSource(ctx, log, filter, src)
		sum.Sources = append(sum.Sources, rep)
		combined = append(combined, kept...)
	}
	sum.Candidates = len(combined)

	// Source order decides which duplicate survives.
	unique := textutil.DedupBy(combined, func(d model.DbOpportunity) string { return textutil.URLKey(d.SourceURL) })
	sum.Unique = len(unique)
	log.Info("candidates collected", "total", sum.Candidates, "unique", sum.Unique)

	survivors := unique
	if o.opts.Classifier.Enabled() {
		session := o.opts.Classifier.NewSession()
		survivors = session.Classify(ctx, unique)
		sum.QuotaExhausted = session.QuotaExhausted()
		metrics.ClassifierVerdicts.WithLabelValues("accepted").Add(float64(session.Accepted))
		metrics.ClassifierVerdicts.WithLabelValues("rejected").Add(float64(session.Rejected))
	} else {
		log.Info("classifier disabled, keeping all candidates")
	}
	sum.Classified = len(survivors)

	if len(survivors) > 0 {
		n, err := o.opts.Store.UpsertOpportunities(ctx, survivors, o.opts.BatchSize)
		sum.Upserted = n
		metrics.UpsertedRows.WithLabelValues("opportunities").Add(float64(n))
		if err != nil {
			sum.UpsertError = err.Error()
			metrics.UpsertFailures.WithLabelValues("opportunities").Inc()
			log.Error("upsert incomplete", "written", n, "of", len(survivors), "error", err)
		}
	}

	sum.FinishedAt = o.opts.Now()
	metrics.LastRunTimestamp.Set(float64(sum.FinishedAt.Unix()))
	log.Info("run finished",
		"upserted", sum.Upserted,
		"failed_sources", sum.FailedSources(),
		"elapsed", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond).String(),
	)

	if o.opts.Events != nil {
		// Non-fatal: the rows are already stored.
		if err := o.opts.Events.PublishRun(ctx, sum); err != nil {
			log.Warn("publish run summary failed", "error", err)
		}
	}
	return sum, nil
}

// runSource extracts, enriches, filters and scores one source. It never
// fails the run; problems end up in the report.
func (o *Orchestrator) runSource(ctx context.Context, runLog *logger.Logger, filter *relevance.Filter, src model.Source) (kept []model.DbOpportunity, rep SourceReport) {
	rep = SourceReport{Name: src.Name, Parser: src.Parser}
	log := runLog.With("source", src.Name, "parser", src.Parser)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		rep.Seconds = elapsed.Seconds()
		metrics.SourceDuration.WithLabelValues(src.Name).Observe(elapsed.Seconds())
	}()

	ext, ok := o.opts.Registry.Lookup(src.Parser)
	if !ok {
		rep.Error = fmt.Sprintf("no extractor registered for parser %q", src.Parser)
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		log.Error("source skipped", "error", rep.Error)
		return nil, rep
	}

	raw, err := safeExtract(ctx, ext, src)
	if err != nil {
		rep.Error = err.Error()
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		log.Error("source failed", "error", err, "partial", len(raw))
	}
	rep.Parsed = len(raw)
	metrics.SourceItems.WithLabelValues(src.Name, "parsed").Add(float64(len(raw)))

	if src.EnrichDetails && o.opts.Enricher != nil && len(raw) > 0 {
		raw = o.opts.Enricher.Enrich(ctx, raw)
	}

	kept = make([]model.DbOpportunity, 0, len(raw))
	for _, r := range raw {
		if reason := filter.Evaluate(src, r); reason != relevance.Accepted {
			rep.Rejected++
			metrics.Rejections.WithLabelValues(src.Name, string(reason)).Inc()
			log.Debug("candidate rejected", "reason", reason, "title", textutil.Truncate(r.Title, 80))
			continue
		}
		kept = append(kept, model.DbOpportunity{RawOpportunity: r, RelevanceScore: o.opts.Scorer.Score(r)})
	}
	rep.Kept = len(kept)
	metrics.SourceItems.WithLabelValues(src.Name, "kept").Add(float64(rep.Kept))
	metrics.SourceItems.WithLabelValues(src.Name, "rejected").Add(float64(rep.Rejected))

	log.Info("source done", "parsed", rep.Parsed, "kept", rep.Kept, "rejected", rep.Rejected)
	return kept, rep
}

// safeExtract turns an extractor panic into that source's error.
func safeExtract(ctx context.Context, ext scraper.Extractor, src model.Source) (out []model.RawOpportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return ext.Extract(ctx, src)
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/metrics"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/scoring"
	"scouted/discovery-service/internal/textutil"
)

var (
	// ErrEmptyBatch means the input array had no elements.
	ErrEmptyBatch = errors.New("input batch is empty")
	// ErrNoValidRecords means every element failed validation.
	ErrNoValidRecords = errors.New("no valid records in batch")
)

// ValidationError describes why one batch element was skipped.
type ValidationError struct {
	Index int
	Msg   string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("record %d: %s", e.Index, e.Msg) }

// CSRStore persists CSR spend records. See db.Store.
type CSRStore interface {
	UpsertCSR(ctx context.Context, recs []model.CsrRecord, batchSize int) (int, error)
}

// Ingester validates, deduplicates and upserts externally supplied batches.
// Opportunities are always rescored; any relevance_score in the input is ignored.
type Ingester struct {
	log       *logger.Logger
	scorer    *scoring.Scorer
	opps      Store
	csr       CSRStore
	validate  *validator.Validate
	batchSize int
}

func NewIngester(log *logger.Logger, scorer *scoring.Scorer, opps Store, csr CSRStore, batchSize int) *Ingester {
	if log == nil {
		log = logger.Nop()
	}
	if batchSize < 1 {
		batchSize = 50
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Ingester{
		log:       log.With("component", "ingest"),
		scorer:    scorer,
		opps:      opps,
		csr:       csr,
		validate:  v,
		batchSize: batchSize,
	}
}

// Report counts one batch through each stage.
type Report struct {
	Received int
	Valid    int
	Unique   int
	Upserted int
	Skipped  []error // *ValidationError per dropped element
	Scored   []model.DbOpportunity
}

// ─── Opportunities ───────────────────────────────────────────────────────────

type opportunityInput struct {
	Title        string   `json:"title"`
	SourceURL    string   `json:"source_url"`
	Description  string   `json:"description"`
	Deadline     *string  `json:"deadline"`
	PocEmail     *string  `json:"poc_email"`
	Tags         []string `json:"tags"`
	Organisation *string  `json:"organisation"`
	Amount       *string  `json:"amount"`
	Location     *string  `json:"location"`
}

// IngestOpportunities reads a JSON array of opportunities, scores the valid
// ones and upserts them on source_url (first occurrence wins).
func (in *Ingester) IngestOpportunities(ctx context.Context, raw []byte) (Report, error) {
	elems, err := decodeArray(raw)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Received: len(elems)}
	if len(elems) == 0 {
		return rep, ErrEmptyBatch
	}

	var valid []model.RawOpportunity
	for i, el := range elems {
		var item opportunityInput
		if err := json.Unmarshal(el, &item); err != nil {
			rep.skip(in.log, i, "malformed object: "+err.Error())
			continue
		}
		opp := in.normalise(item)
		if err := in.validate.Struct(opp); err != nil {
			rep.skip(in.log, i, describe(err))
			continue
		}
		valid = append(valid, opp)
	}
	rep.Valid = len(valid)
	if rep.Valid == 0 {
		return rep, ErrNoValidRecords
	}

	unique := textutil.Dedup(valid)
	rep.Unique = len(unique)
	for _, o := range unique {
		rep.Scored = append(rep.Scored, model.DbOpportunity{RawOpportunity: o, RelevanceScore: in.scorer.Score(o)})
	}

	n, err := in.opps.UpsertOpportunities(ctx, rep.Scored, in.batchSize)
	rep.Upserted = n
	metrics.UpsertedRows.WithLabelValues("opportunities").Add(float64(n))
	if err != nil {
		metrics.UpsertFailures.WithLabelValues("opportunities").Inc()
		return rep, fmt.Errorf("upsert opportunities: %w", err)
	}
	in.log.Info("opportunity batch ingested", "received", rep.Received, "valid", rep.Valid, "unique", rep.Unique, "upserted", n)
	return rep, nil
}

// normalise trims and bounds fields and restores the record invariants:
// non-empty tags and an ISO deadline or none.
func (in *Ingester) normalise(it opportunityInput) model.RawOpportunity {
	o := model.RawOpportunity{
		Title:        textutil.Truncate(strings.TrimSpace(it.Title), 300),
		SourceURL:    strings.TrimSpace(it.SourceURL),
		Description:  textutil.Truncate(strings.TrimSpace(it.Description), 2000),
		PocEmail:     nullable(it.PocEmail),
		Organisation: nullable(it.Organisation),
		Amount:       nullable(it.Amount),
		Location:     nullable(it.Location),
	}
	if d := nullable(it.Deadline); d != nil {
		if o.Deadline = textutil.ParseDate(*d); o.Deadline == nil {
			in.log.Warn("unparseable deadline dropped", "source_url", o.SourceURL, "deadline", *d)
		}
	}
	for _, t := range it.Tags {
		if t = strings.TrimSpace(t); t != "" {
			o.Tags = append(o.Tags, t)
		}
	}
	if len(o.Tags) == 0 {
		o.Tags = textutil.ExtractTags(o.Title + " " + o.Description)
	}
	return o
}

// ─── CSR ─────────────────────────────────────────────────────────────────────

var fiscalYearRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// DefaultFiscalYear is used when a CSR batch names none.
const DefaultFiscalYear = "2023-24"

type csrInput struct {
	Company  string          `json:"Company"`
	CIN      string          `json:"CIN"`
	Field    string          `json:"Field"`
	SpendINR json.RawMessage `json:"Spend_INR"`
}

// IngestCSR reads a JSON array of MCA CSR rows and upserts them for
// fiscalYear on (cin, field, fiscal_year).
func (in *Ingester) IngestCSR(ctx context.Context, raw []byte, fiscalYear string) (Report, error) {
	if fiscalYear == "" {
		fiscalYear = DefaultFiscalYear
	}
	if !fiscalYearRe.MatchString(fiscalYear) {
		return Report{}, fmt.Errorf("fiscal year %q: want YYYY-YY", fiscalYear)
	}
	elems, err := decodeArray(raw)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Received: len(elems)}
	if len(elems) == 0 {
		return rep, ErrEmptyBatch
	}

	var valid []model.CsrRecord
	for i, el := range elems {
		var item csrInput
		if err := json.Unmarshal(el, &item); err != nil {
			rep.skip(in.log, i, "malformed object: "+err.Error())
			continue
		}
		rec := model.CsrRecord{
			Company:    strings.TrimSpace(item.Company),
			CIN:        strings.TrimSpace(item.CIN),
			Field:      strings.TrimSpace(item.Field),
			FiscalYear: fiscalYear,
		}
		if err := in.validate.Struct(rec); err != nil {
			rep.skip(in.log, i, describe(err))
			continue
		}
		spend, err := parseSpend(item.SpendINR)
		if err != nil {
			rep.skip(in.log, i, fmt.Sprintf("invalid Spend_INR for %q / %q", rec.Company, rec.Field))
			continue
		}
		rec.SpendINR = spend
		valid = append(valid, rec)
	}
	rep.Valid = len(valid)
	if rep.Valid == 0 {
		return rep, ErrNoValidRecords
	}

	unique := textutil.DedupBy(valid, model.CsrRecord.Key)
	rep.Unique = len(unique)

	n, err := in.csr.UpsertCSR(ctx, unique, in.batchSize)
	rep.Upserted = n
	metrics.UpsertedRows.WithLabelValues("csr_spending").Add(float64(n))
	if err != nil {
		metrics.UpsertFailures.WithLabelValues("csr_spending").Inc()
		return rep, fmt.Errorf("upsert csr_spending: %w", err)
	}
	in.log.Info("csr batch ingested", "fiscal_year", fiscalYear, "received", rep.Received, "valid", rep.Valid, "unique", rep.Unique, "upserted", n)
	return rep, nil
}

// parseSpend accepts a JSON number or a string with thousands separators.
func parseSpend(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing")
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	} else {
		s = string(raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeArray(raw []byte) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("invalid JSON input, expected an array: %w", err)
	}
	return elems, nil
}

func (r *Report) skip(log *logger.Logger, i int, msg string) {
	err := &ValidationError{Index: i, Msg: msg}
	r.Skipped = append(r.Skipped, err)
	log.Warn("record skipped", "index", i, "reason", msg)
}

// describe renders validator errors as "missing title, invalid source_url".
func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, "missing "+name)
		default:
			parts = append(parts, "invalid "+name)
		}
	}
	return strings.Join(parts, ", ")
}

func nullable(s *string) *string {
	if s == nil {
		return nil
	}
	return model.Nullable(*s)
}

// Package classifier is the optional LLM relevance pass over scored
// candidates. It batches items, asks a chat-completions endpoint for one
// boolean per item, falls back across models, and fails open: when no model
// answers, every item in the batch is kept.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/textutil"
)

const (
	DefaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	DefaultBatchSize   = 10
	DefaultDelay       = 3 * time.Second
	DefaultMaxAttempts = 2

	quotaMarker    = "free-models-per-day"
	itemDescLimit  = 200
	errBodyLimit   = 200
	requestTimeout = 60 * time.Second
)

// DefaultModels are tried in this order for every batch.
var DefaultModels = []string{
	"google/gemma-3-27b-it:free",
	"meta-llama/llama-3.3-70b-instruct:free",
	"google/gemma-3-4b-it:free",
}

// ErrQuotaExhausted marks the daily-quota 429. Once seen, the session makes
// no further calls.
var ErrQuotaExhausted = errors.New("classifier: daily quota exhausted")

// SystemPrompt describes what counts as relevant.
const SystemPrompt = `You are a classifier for an Indian education non-profit focused on K-12 school education.

For each item, reply ONLY with a JSON array of booleans: true if RELEVANT, false if NOT RELEVANT. Example: [true, false, true]

RELEVANT:
- K-12 school education in India (primary, secondary, upper secondary)
- Foundational Literacy and Numeracy (FLN), ECCE / Anganwadi education
- Teacher training and professional development for school teachers
- EdTech for school-age children
- School governance, school leadership
- Education policy (NEP 2020, Samagra Shiksha, Right to Education)
- CSR / philanthropic funding specifically for school education in India
- Grants, RFPs, or funding opportunities for education NGOs working in India

NOT RELEVANT:
- Higher education only (universities, colleges, postgraduate) with no K-12 component
- Healthcare, nutrition, sanitation, WASH (unless part of a school programme)
- Women empowerment, gender programmes (unless specifically about girls' school education)
- Agriculture, environment, climate change
- Livelihood, microfinance, vocational training for adults, self-help groups
- International programmes with no India connection
- Corporate training, workforce development, adult skills
- Sports, arts, culture (unless school curriculum related)`

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*?\]`)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configure a Classifier. Zero values take the defaults above.
type Options struct {
	APIKey      string
	Endpoint    string
	Models      []string
	BatchSize   int
	MaxAttempts int
	Delay       time.Duration
	HTTPClient  *http.Client
	Sleep       SleepFunc
	Log         *logger.Logger
}

// Classifier holds configuration only; per-run state lives in a Session.
type Classifier struct {
	opts Options
	log  *logger.Logger
}

func New(opts Options) *Classifier {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if len(opts.Models) == 0 {
		opts.Models = DefaultModels
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Classifier{opts: opts, log: opts.Log.With("component", "classifier")}
}

// Enabled is false without an API key; sessions then pass items through.
func (c *Classifier) Enabled() bool { return c != nil && c.opts.APIKey != "" }

// NewSession starts the state for one pipeline run.
func (c *Classifier) NewSession() *Session { return &Session{c: c} }

// ─── Session ─────────────────────────────────────────────────────────────────

// Session carries the quota flag and call statistics for one run. It is not
// safe for concurrent use.
type Session struct {
	c              *Classifier
	quotaExhausted bool

	Calls    int
	Accepted int
	Rejected int
}

// QuotaExhausted reports whether the daily quota signal was seen.
func (s *Session) QuotaExhausted() bool { return s.quotaExhausted }

// Classify returns the items the model judged relevant, in input order.
// It never returns fewer items because of a failure, only because of a
// negative verdict.
func (s *Session) Classify(ctx context.Context, items []model.DbOpportunity) []model.DbOpportunity {
	if !s.c.Enabled() {
		s.c.log.Info("OPENROUTER_API_KEY not set, skipping classification")
		return items
	}
	if len(items) == 0 {
		return items
	}

	size := s.c.opts.BatchSize
	total := (len(items) + size - 1) / size
	kept := make([]model.DbOpportunity, 0, len(items))

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		n := start/size + 1

		if s.quotaExhausted {
			s.c.log.Info("quota exhausted, accepting batch unclassified", "batch", n, "of", total, "items", len(batch))
			kept = append(kept, batch...)
			s.Accepted += len(batch)
			continue
		}

		verdicts := s.classifyBatch(ctx, batch)
		for i, ok := range verdicts {
			if ok {
				kept = append(kept, batch[i])
				s.Accepted++
			} else {
				s.Rejected++
				s.c.log.Debug("rejected", "title", batch[i].Title)
			}
		}

		if end < len(items) {
			if err := s.c.opts.Sleep(ctx, s.c.opts.Delay); err != nil {
				kept = append(kept, items[end:]...)
				s.Accepted += len(items) - end
				break
			}
		}
	}

	s.c.log.Info("classification done", "accepted", s.Accepted, "rejected", s.Rejected, "calls", s.Calls)
	return kept
}

// ─── Attempt state machine ───────────────────────────────────────────────────

// attemptOutcome classifies one call to one model.
type attemptOutcome int

const (
	outcomeSuccess   attemptOutcome = iota
	outcomeRetryable                // transient 429
	outcomeTerminal                 // anything else: bad status, shape or JSON
	outcomeQuota                    // daily quota gone
)

// step is what the batch loop does after an outcome.
type step int

const (
	stepDone step = iota
	stepRetrySameModel
	stepNextModel
	stepGiveUp
)

// next maps an outcome to a step. A retryable failure on the last allowed
// attempt moves on to the next model.
func next(o attemptOutcome, attempt, maxAttempts int) step {
	switch o {
	case outcomeSuccess:
		return stepDone
	case outcomeRetryable:
		if attempt+1 < maxAttempts {
			return stepRetrySameModel
		}
		return stepNextModel
	case outcomeQuota:
		return stepGiveUp
	default:
		return stepNextModel
	}
}

// backoff before attempt n (n ≥ 1) is delay × 2^n.
func backoff(delay time.Duration, attempt int) time.Duration {
	return delay * time.Duration(1<<uint(attempt))
}

func (s *Session) classifyBatch(ctx context.Context, batch []model.DbOpportunity) []bool {
	lines := make([]string, len(batch))
	for i, o := range batch {
		lines[i] = formatItem(o, i)
	}
	prompt := strings.Join(lines, "\n")

models:
	for _, m := range s.c.opts.Models {
		for attempt := 0; attempt < s.c.opts.MaxAttempts; attempt++ {
			if attempt > 0 {
				wait := backoff(s.c.opts.Delay, attempt)
				s.c.log.Info("retrying model", "model", m, "attempt", attempt+1, "backoff", wait)
				if err := s.c.opts.Sleep(ctx, wait); err != nil {
					break models
				}
			}

			verdicts, outcome, err := s.call(ctx, m, prompt, len(batch))
			switch next(outcome, attempt, s.c.opts.MaxAttempts) {
			case stepDone:
				return verdicts
			case stepRetrySameModel:
				s.c.log.Warn("model rate-limited upstream", "model", m, "error", err)
				continue
			case stepNextModel:
				s.c.log.Warn("model failed, trying next", "model", m, "error", err)
				continue models
			case stepGiveUp:
				s.quotaExhausted = true
				s.c.log.Warn("daily quota exhausted, skipping remaining batches", "model", m)
				break models
			}
		}
	}

	s.c.log.Warn("all models failed, accepting batch", "items", len(batch))
	all := make([]bool, len(batch))
	for i := range all {
		all[i] = true
	}
	return all
}

// ─── Transport ───────────────────────────────────────────────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Session) call(ctx context.Context, modelName, prompt string, want int) ([]bool, attemptOutcome, error) {
	s.Calls++

	payload, err := json.Marshal(chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, outcomeTerminal, fmt.Errorf("json marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, outcomeTerminal, err
	}
	req.Header.Set("Authorization", "Bearer "+s.c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://scouted.app")
	req.Header.Set("X-Title", "ScoutEd Scraper")

	resp, err := s.c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, outcomeTerminal, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests && bytes.Contains(body, []byte(quotaMarker)):
		return nil, outcomeQuota, ErrQuotaExhausted
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, outcomeRetryable, fmt.Errorf("%s rate-limited", modelName)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, outcomeTerminal, fmt.Errorf("%s returned %d: %s", modelName, resp.StatusCode, textutil.Truncate(string(body), errBodyLimit))
	}

	verdicts, err := parseVerdicts(body, want)
	if err != nil {
		return nil, outcomeTerminal, fmt.Errorf("%s: %w", modelName, err)
	}
	return verdicts, outcomeSuccess, nil
}

// parseVerdicts pulls the first JSON array out of the completion text, which
// models sometimes wrap in prose or code fences.
func parseVerdicts(body []byte, want int) ([]bool, error) {
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("api error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return nil, errors.New("empty completion")
	}

	match := jsonArrayRe.FindString(cr.Choices[0].Message.Content)
	if match == "" {
		return nil, errors.New("no JSON array in completion")
	}
	var raw []interface{}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("parse array: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("array length mismatch: got %d, want %d", len(raw), want)
	}

	out := make([]bool, len(raw))
	for i, v := range raw {
		out[i] = truthy(v)
	}
	return out, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case nil:
		return false
	default:
		return true
	}
}

func formatItem(o model.DbOpportunity, i int) string {
	desc := strings.ReplaceAll(textutil.Truncate(o.Description, itemDescLimit), "\n", " ")
	org := "Unknown"
	if o.Organisation != nil && *o.Organisation != "" {
		org = *o.Organisation
	}
	tags := "None"
	if len(o.Tags) > 0 {
		tags = strings.Join(o.Tags, ", ")
	}
	return fmt.Sprintf("Item %d: %q | Org: %s | Desc: %s | Tags: %s", i+1, o.Title, org, desc, tags)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

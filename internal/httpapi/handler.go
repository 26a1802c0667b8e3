// Package httpapi implements the HTTP surface of the discovery service.
//
// Routes:
//
//	GET  /health               → liveness plus the last pipeline run summary
//	GET  /metrics              → Prometheus exposition
//	GET  /opportunities        → stored opportunities with read-time score
//	POST /api/subscribe        → add a digest subscriber, send a welcome email
//	GET  /api/unsubscribe      → remove the subscriber owning ?token=
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"scouted/discovery-service/internal/db"
	"scouted/discovery-service/internal/digest"
	"scouted/discovery-service/internal/logger"
	"scouted/discovery-service/internal/metrics"
	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/scoring"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ─── Dependencies ────────────────────────────────────────────────────────────

// Store is the subset of db.Store the handlers read and write.
type Store interface {
	ListOpportunities(ctx context.Context, q db.Query) ([]model.StoredOpportunity, error)
	Subscribe(ctx context.Context, email string) (model.Subscriber, bool, error)
	Unsubscribe(ctx context.Context, token string) error
}

// RunStatus exposes the last published pipeline summary. See db.RunEvents.
type RunStatus interface {
	LastRun(ctx context.Context) (json.RawMessage, error)
}

// Welcomer renders the subscription confirmation. See digest.Builder.
type Welcomer interface {
	RenderWelcome(email string) (string, error)
}

// Options wires a Handler. Runs, Mailer and Welcome are optional.
type Options struct {
	Store   Store
	Scorer  *scoring.Scorer
	Runs    RunStatus
	Mailer  digest.Mailer
	Welcome Welcomer
	Version string
	Now     func() time.Time
	Log     *logger.Logger
}

// ─── Response types ──────────────────────────────────────────────────────────

// Opportunity is the JSON shape of one listed row.
type Opportunity struct {
	model.StoredOpportunity
	DisplayScore int           `json:"display_score"`
	Level        scoring.Level `json:"level"`
}

type listResponse struct {
	Opportunities []Opportunity `json:"opportunities"`
	Count         int           `json:"count"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	opts     Options
	log      *logger.Logger
	validate *validator.Validate
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{opts: opts, log: opts.Log.With("component", "http"), validate: validator.New()}
}

// RegisterRoutes mounts all routes on mux, each instrumented under its pattern.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/health", metrics.Instrument("/health", http.HandlerFunc(h.health)))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/opportunities", metrics.Instrument("/opportunities", http.HandlerFunc(h.listOpportunities)))
	mux.Handle("/api/subscribe", metrics.Instrument("/api/subscribe", http.HandlerFunc(h.subscribe)))
	mux.Handle("/api/unsubscribe", metrics.Instrument("/api/unsubscribe", http.HandlerFunc(h.unsubscribe)))
}

// ─── Individual handlers ─────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"service": "discovery-service",
		"version": h.opts.Version,
	}
	if h.opts.Runs != nil {
		last, err := h.opts.Runs.LastRun(r.Context())
		if err != nil {
			h.log.Warn("last run lookup failed", "error", err)
		} else if last != nil {
			resp["last_run"] = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func (h *Handler) listOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	qs := r.URL.Query()

	q := db.Query{
		Tag:    strings.TrimSpace(qs.Get("tag")),
		State:  strings.TrimSpace(qs.Get("state")),
		Search: strings.TrimSpace(qs.Get("q")),
	}
	if d := qs.Get("deadline_before"); d != "" {
		if !isoDate.MatchString(d) {
			jsonError(w, "deadline_before must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		q.DeadlineBefore = d
	}
	var err error
	if q.Limit, err = intParam(qs.Get("limit"), defaultPageSize); err != nil || q.Limit > maxPageSize {
		jsonError(w, "limit must be between 1 and 200", http.StatusBadRequest)
		return
	}
	if q.Offset, err = intParam(qs.Get("offset"), 0); err != nil {
		jsonError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}

	var level scoring.Level
	switch l := scoring.Level(strings.ToLower(qs.Get("level"))); l {
	case "":
	case scoring.LevelHigh, scoring.LevelMedium, scoring.LevelLow:
		level = l
	default:
		jsonError(w, "level must be high, medium or low", http.StatusBadRequest)
		return
	}

	rows, err := h.opts.Store.ListOpportunities(r.Context(), q)
	if err != nil {
		h.log.Error("list opportunities failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	now := h.opts.Now()
	out := make([]Opportunity, 0, len(rows))
	for _, row := range rows {
		score := h.opts.Scorer.DisplayScore(row.RelevanceScore, row.CreatedAt, now)
		lv := h.opts.Scorer.Level(score)
		if level != "" && lv != level {
			continue
		}
		out = append(out, Opportunity{StoredOpportunity: row, DisplayScore: score, Level: lv})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayScore > out[j].DisplayScore })
	writeJSON(w, http.StatusOK, listResponse{Opportunities: out, Count: len(out)})
}

type subscribeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if err := h.validate.Struct(body); err != nil {
		jsonError(w, "a valid email is required", http.StatusBadRequest)
		return
	}

	sub, created, err := h.opts.Store.Subscribe(r.Context(), body.Email)
	if err != nil {
		h.log.Error("subscribe failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]interface{}{"subscribed": true, "message": "already subscribed"})
		return
	}

	h.sendWelcome(r.Context(), sub.Email)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"subscribed": true, "message": "subscribed"})
}

// sendWelcome never fails the subscription.
func (h *Handler) sendWelcome(ctx context.Context, email string) {
	if h.opts.Mailer == nil || h.opts.Welcome == nil {
		return
	}
	html, err := h.opts.Welcome.RenderWelcome(email)
	if err != nil {
		h.log.Warn("welcome render failed", "error", err)
		return
	}
	err = h.opts.Mailer.Send(ctx, digest.Email{To: email, Subject: "Welcome to ScoutEd", HTML: html})
	if err != nil {
		h.log.Warn("welcome email failed", "error", err)
	}
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		jsonError(w, "missing token", http.StatusBadRequest)
		return
	}
	err := h.opts.Store.Unsubscribe(r.Context(), token)
	switch {
	case errors.Is(err, db.ErrNotFound):
		jsonError(w, "unknown or already used token", http.StatusNotFound)
	case err != nil:
		h.log.Error("unsubscribe failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"unsubscribed": true})
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errors.New("invalid")
	}
	if v == 0 && def > 0 {
		return 0, errors.New("invalid")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

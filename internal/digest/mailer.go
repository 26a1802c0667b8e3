package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scouted/discovery-service/internal/logger"
)

const (
	DefaultResendURL = "https://api.resend.com"

	// VerifiedSender is used once the sending domain is verified with Resend.
	VerifiedSender = "ScoutEd <digest@scouted.whybe.ai>"
	// SandboxSender works without domain verification.
	SandboxSender = "ScoutEd <onboarding@resend.dev>"

	resendBatchLimit = 100
)

// Email is one outgoing message.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
	SendBatch(ctx context.Context, emails []Email) (int, error)
}

// ResendConfig configures ResendMailer.
type ResendConfig struct {
	APIKey         string
	BaseURL        string
	DomainVerified bool
	HTTPClient     *http.Client
}

// ResendMailer talks to the Resend HTTP API.
type ResendMailer struct {
	cfg  ResendConfig
	http *http.Client
	log  *logger.Logger
}

func NewResendMailer(cfg ResendConfig, log *logger.Logger) (*ResendMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing RESEND_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultResendURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResendMailer{cfg: cfg, http: cfg.HTTPClient, log: log.With("component", "mailer")}, nil
}

// From is the sender address allowed by the domain verification state.
func (m *ResendMailer) From() string {
	return SenderFor(m.cfg.DomainVerified)
}

// SenderFor picks the verified-domain sender or the sandbox fallback.
func SenderFor(domainVerified bool) string {
	if domainVerified {
		return VerifiedSender
	}
	return SandboxSender
}

func (m *ResendMailer) Send(ctx context.Context, e Email) error {
	if e.From == "" {
		e.From = m.From()
	}
	return m.post(ctx, "/emails", e)
}

// SendBatch posts emails in groups the batch endpoint accepts. It stops at
// the first rejected group and returns how many were accepted before it.
func (m *ResendMailer) SendBatch(ctx context.Context, emails []Email) (int, error) {
	sent := 0
	for start := 0; start < len(emails); start += resendBatchLimit {
		end := min(start+resendBatchLimit, len(emails))
		group := make([]Email, end-start)
		copy(group, emails[start:end])
		for i := range group {
			if group[i].From == "" {
				group[i].From = m.From()
			}
		}
		if err := m.post(ctx, "/emails/batch", group); err != nil {
			return sent, err
		}
		sent += len(group)
		m.log.Debug("batch accepted", "emails", len(group))
	}
	return sent, nil
}

func (m *ResendMailer) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("resend %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("resend %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

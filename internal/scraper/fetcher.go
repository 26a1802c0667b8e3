package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	httpTimeout     = 15 * time.Second
	maxBodyBytes    = 8 << 20
	browserUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	aggregatorUA    = "ScoutEd/1.0 (education grant aggregator)"
	acceptFeed      = "application/rss+xml, application/xml, text/xml"
	acceptJSON      = "application/json"
	statusBodyLimit = 300
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Code, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Fetcher issues HTTP requests for extractors. A zero User-Agent header gets
// the browser default.
type Fetcher struct {
	client *http.Client
}

// NewFetcher wraps client, or a client with the default timeout when nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return &Fetcher{client: client}
}

// NewInsecureFetcher skips TLS verification. Only for sources with a broken
// certificate chain.
func NewInsecureFetcher(timeout time.Duration) *Fetcher {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &Fetcher{client: &http.Client{Timeout: timeout, Transport: tr}}
}

// Get fetches rawURL and returns the body of a 2xx response.
func (f *Fetcher) Get(ctx context.Context, rawURL string, hdr http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return f.do(req, hdr)
}

// PostJSON marshals payload as the request body.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, payload interface{}, hdr http.Header) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, hdr)
}

// PostForm sends form as application/x-www-form-urlencoded.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values, hdr http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, hdr)
}

func (f *Fetcher) do(req *http.Request, hdr http.Header) ([]byte, error) {
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", browserUA)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > statusBodyLimit {
			snippet = snippet[:statusBodyLimit]
		}
		return nil, &StatusError{URL: req.URL.String(), Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

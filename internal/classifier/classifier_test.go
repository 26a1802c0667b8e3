package classifier_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scouted/discovery-service/internal/classifier"
	"scouted/discovery-service/internal/model"
)

type fakeSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeSleep) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	return nil
}

func items(n int) []model.DbOpportunity {
	out := make([]model.DbOpportunity, n)
	for i := range out {
		out[i].Title = fmt.Sprintf("item %d", i)
		out[i].SourceURL = fmt.Sprintf("https://example.org/%d", i)
	}
	return out
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
	})
	return string(b)
}

// recorder serves canned responses in order and records the model of each call.
type recorder struct {
	mu     sync.Mutex
	models []string
	reply  func(call int, model string) (int, string)
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	r.mu.Lock()
	r.models = append(r.models, body.Model)
	call := len(r.models)
	r.mu.Unlock()

	status, text := r.reply(call, body.Model)
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}

func newClassifier(t *testing.T, rec *recorder, sleep *fakeSleep) *classifier.Classifier {
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return classifier.New(classifier.Options{
		APIKey:     "test-key",
		Endpoint:   srv.URL,
		Models:     []string{"m1", "m2", "m3"},
		HTTPClient: srv.Client(),
		Sleep:      sleep.Sleep,
	})
}

func TestFailOpenWhenEveryModelErrors(t *testing.T) {
	rec := &recorder{reply: func(int, string) (int, string) { return http.StatusInternalServerError, "boom" }}
	c := newClassifier(t, rec, &fakeSleep{})

	in := items(4)
	got := c.NewSession().Classify(context.Background(), in)
	assert.Equal(t, in, got)
	assert.Equal(t, []string{"m1", "m2", "m3"}, rec.models, "terminal failures move straight to the next model")
}

func TestFiltersByVerdict(t *testing.T) {
	rec := &recorder{reply: func(int, string) (int, string) {
		return http.StatusOK, completion("```json\n[true, false, true]\n```")
	}}
	c := newClassifier(t, rec, &fakeSleep{})

	in := items(3)
	s := c.NewSession()
	got := s.Classify(context.Background(), in)
	require.Len(t, got, 2)
	assert.Equal(t, in[0].SourceURL, got[0].SourceURL)
	assert.Equal(t, in[2].SourceURL, got[1].SourceURL)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 1, s.Rejected)
}

func TestTransientRateLimitRetriesWithBackoff(t *testing.T) {
	rec := &recorder{reply: func(call int, _ string) (int, string) {
		if call == 1 {
			return http.StatusTooManyRequests, `{"error":{"message":"upstream busy"}}`
		}
		return http.StatusOK, completion("[false, true]")
	}}
	sleep := &fakeSleep{}
	c := newClassifier(t, rec, sleep)

	got := c.NewSession().Classify(context.Background(), items(2))
	require.Len(t, got, 1)
	assert.Equal(t, "item 1", got[0].Title)
	assert.Equal(t, []string{"m1", "m1"}, rec.models)
	assert.Equal(t, []time.Duration{6 * time.Second}, sleep.waits)
}

func TestRetryCapFallsThroughToNextModel(t *testing.T) {
	rec := &recorder{reply: func(_ int, m string) (int, string) {
		if m == "m1" {
			return http.StatusTooManyRequests, "slow down"
		}
		return http.StatusOK, completion("[true]")
	}}
	c := newClassifier(t, rec, &fakeSleep{})

	got := c.NewSession().Classify(context.Background(), items(1))
	assert.Len(t, got, 1)
	assert.Equal(t, []string{"m1", "m1", "m2"}, rec.models)
}

func TestLengthMismatchAbandonsModel(t *testing.T) {
	rec := &recorder{reply: func(_ int, m string) (int, string) {
		if m == "m1" {
			return http.StatusOK, completion("[true]")
		}
		return http.StatusOK, completion("[false, false]")
	}}
	c := newClassifier(t, rec, &fakeSleep{})

	got := c.NewSession().Classify(context.Background(), items(2))
	assert.Empty(t, got)
	assert.Equal(t, []string{"m1", "m2"}, rec.models)
}

func TestQuotaExhaustionShortCircuitsSession(t *testing.T) {
	rec := &recorder{reply: func(int, string) (int, string) {
		return http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded: free-models-per-day"}}`
	}}
	sleep := &fakeSleep{}
	c := classifierWithBatch(t, rec, sleep, 2)

	s := c.NewSession()
	in := items(5)
	got := s.Classify(context.Background(), in)

	assert.Equal(t, in, got)
	assert.True(t, s.QuotaExhausted())
	assert.Equal(t, 1, s.Calls)
	assert.Len(t, rec.models, 1)

	// A fresh session starts clean.
	assert.False(t, c.NewSession().QuotaExhausted())
}

func TestDisabledPassesThrough(t *testing.T) {
	c := classifier.New(classifier.Options{})
	assert.False(t, c.Enabled())
	in := items(3)
	assert.Equal(t, in, c.NewSession().Classify(context.Background(), in))
}

func classifierWithBatch(t *testing.T, rec *recorder, sleep *fakeSleep, batch int) *classifier.Classifier {
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return classifier.New(classifier.Options{
		APIKey:     "test-key",
		Endpoint:   srv.URL,
		Models:     []string{"m1", "m2"},
		BatchSize:  batch,
		HTTPClient: srv.Client(),
		Sleep:      sleep.Sleep,
	})
}

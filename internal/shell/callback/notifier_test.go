package callback

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/relaunch/internal/core/crypto"
	"github.com/artpar/relaunch/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type receivedCallback struct {
	body   []byte
	header http.Header
}

// callbackReceiver records every request and answers with the next status in statuses.
type callbackReceiver struct {
	mu       sync.Mutex
	received []receivedCallback
	statuses []int
	attempts atomic.Int32
}

func (c *callbackReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	n := int(c.attempts.Add(1))

	c.mu.Lock()
	c.received = append(c.received, receivedCallback{body: body, header: r.Header.Clone()})
	status := http.StatusOK
	if n <= len(c.statuses) {
		status = c.statuses[n-1]
	}
	c.mu.Unlock()

	w.WriteHeader(status)
}

func (c *callbackReceiver) Received() []receivedCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]receivedCallback(nil), c.received...)
}

func testPayload() domain.CallbackPayload {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.CallbackPayload{
		Success:      true,
		DeploymentID: "5b1e9c1e-1d7c-4d5e-9d38-8a0cf5b5b0a1",
		Stdout:       "pulled library/nginx:alpine\n",
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
		Params: domain.DeployParams{
			Name:          "web1",
			Repo:          "library/nginx",
			Version:       "alpine",
			Port:          8080,
			ContainerPort: 80,
		},
	}
}

func fastConfig(url string) Config {
	return Config{
		URL:          url,
		MaxAttempts:  3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

// =============================================================================
// Notifier Tests
// =============================================================================

func TestNotify_SignedBody(t *testing.T) {
	receiver := &callbackReceiver{}
	srv := httptest.NewServer(receiver)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Secret = "topsecret"
	cfg.Headers = map[string]string{"X-Env": "staging"}
	n := NewNotifier(cfg, setupTestLogger())

	require.NoError(t, n.Notify(context.Background(), testPayload()))

	got := receiver.Received()
	require.Len(t, got, 1)
	assert.Equal(t, "application/json", got[0].header.Get("Content-Type"))
	assert.Equal(t, "staging", got[0].header.Get("X-Env"))

	sig := got[0].header.Get("x-webhook-signature")
	require.NotEmpty(t, sig)
	assert.NoError(t, crypto.Verify([]byte("topsecret"), got[0].body, sig))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got[0].body, &decoded))
	assert.Equal(t, "5b1e9c1e-1d7c-4d5e-9d38-8a0cf5b5b0a1", decoded["deploymentId"])
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "2026-03-01T10:00:00Z", decoded["startedAt"])
	assert.Equal(t, "2026-03-01T10:00:03Z", decoded["finishedAt"])
	params := decoded["params"].(map[string]any)
	assert.Equal(t, "web1", params["name"])
}

func TestNotify_Unsigned(t *testing.T) {
	receiver := &callbackReceiver{}
	srv := httptest.NewServer(receiver)
	defer srv.Close()

	n := NewNotifier(fastConfig(srv.URL), setupTestLogger())
	require.NoError(t, n.Notify(context.Background(), testPayload()))

	got := receiver.Received()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].header.Get(crypto.SignatureHeader))
}

func TestNotify_ConfiguredHeadersCannotOverrideSignature(t *testing.T) {
	cfg := fastConfig("http://example.invalid")
	cfg.Secret = "s"
	cfg.Headers = map[string]string{
		"Content-Type":        "text/plain",
		"X-Webhook-Signature": "forged",
	}
	n := NewNotifier(cfg, setupTestLogger())

	body, header, err := n.Encode(testPayload())
	require.NoError(t, err)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.NoError(t, crypto.Verify([]byte("s"), body, header.Get(crypto.SignatureHeader)))
}

func TestNotify_RetriesServerErrors(t *testing.T) {
	receiver := &callbackReceiver{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	srv := httptest.NewServer(receiver)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Secret = "topsecret"
	n := NewNotifier(cfg, setupTestLogger())

	require.NoError(t, n.Notify(context.Background(), testPayload()))

	got := receiver.Received()
	require.Len(t, got, 3)
	// Every attempt carries identical bytes and signature.
	assert.Equal(t, got[0].body, got[2].body)
	assert.Equal(t, got[0].header.Get(crypto.SignatureHeader), got[2].header.Get(crypto.SignatureHeader))
}

func TestNotify_GivesUpAfterMaxAttempts(t *testing.T) {
	receiver := &callbackReceiver{statuses: []int{500, 500, 500, 500}}
	srv := httptest.NewServer(receiver)
	defer srv.Close()

	n := NewNotifier(fastConfig(srv.URL), setupTestLogger())
	err := n.Notify(context.Background(), testPayload())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, int32(3), receiver.attempts.Load())
}

func TestNotify_ClientErrorNotRetried(t *testing.T) {
	receiver := &callbackReceiver{statuses: []int{http.StatusBadRequest}}
	srv := httptest.NewServer(receiver)
	defer srv.Close()

	n := NewNotifier(fastConfig(srv.URL), setupTestLogger())
	err := n.Notify(context.Background(), testPayload())

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, int32(1), receiver.attempts.Load())
}

func TestNotify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := fastConfig(url)
	cfg.MaxAttempts = 1
	n := NewNotifier(cfg, setupTestLogger())

	err := n.Notify(context.Background(), testPayload())
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNotify_NoURLIsNoop(t *testing.T) {
	n := NewNotifier(Config{}, setupTestLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), testPayload()))
}

func TestNewNotifier_Defaults(t *testing.T) {
	n := NewNotifier(Config{URL: "http://example.invalid"}, nil)
	d := DefaultConfig()
	assert.Equal(t, d.MaxAttempts-1, n.client.RetryMax)
	assert.Equal(t, d.Timeout, n.client.HTTPClient.Timeout)
}

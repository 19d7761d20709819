// Package callback delivers signed deployment outcomes to an external observer.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/artpar/relaunch/internal/core/crypto"
	"github.com/artpar/relaunch/internal/core/domain"
)

// =============================================================================
// Notifier
// =============================================================================

// ErrDeliveryFailed is returned when the endpoint never answered with a 2xx status.
var ErrDeliveryFailed = errors.New("callback delivery failed")

// Config holds callback delivery settings.
type Config struct {
	URL          string
	Secret       string
	Headers      map[string]string // static headers added to every POST
	Timeout      time.Duration     // per attempt
	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns default delivery settings without a URL.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxAttempts:  3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// Notifier POSTs callback payloads.
type Notifier struct {
	cfg    Config
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier. Zero-valued settings take DefaultConfig values.
func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = defaults.RetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = defaults.RetryWaitMax
	}
	logger = logger.With("component", "callback_notifier")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxAttempts - 1
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logger
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Notifier{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Enabled reports whether a callback URL is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.URL != ""
}

// Encode serializes payload and returns the body together with its headers.
// The signature header is present only when a secret is configured and
// covers exactly the returned bytes.
func (n *Notifier) Encode(payload domain.CallbackPayload) ([]byte, http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal callback payload: %w", err)
	}

	header := http.Header{}
	for k, v := range n.cfg.Headers {
		header.Set(k, v)
	}
	header.Set("Content-Type", "application/json")

	if n.cfg.Secret != "" {
		sig, err := crypto.Sign([]byte(n.cfg.Secret), body)
		if err != nil {
			return nil, nil, err
		}
		header.Set(crypto.SignatureHeader, sig)
	}

	return body, header, nil
}

// Notify delivers payload, retrying transport errors and 5xx/429 answers.
// It is a no-op when no URL is configured.
func (n *Notifier) Notify(ctx context.Context, payload domain.CallbackPayload) error {
	if !n.Enabled() {
		return nil
	}

	body, header, err := n.Encode(payload)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, body)
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header = header

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	n.logger.Debug("callback delivered",
		"deployment_id", payload.DeploymentID,
		"status", resp.StatusCode,
	)
	return nil
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

const (
	// DefaultTimeout bounds a single forward when none is configured.
	DefaultTimeout = 10 * time.Second

	userAgent = "service-desk-notifier"

	// Credential headers understood by the push service.
	HeaderUsername = "X-Push-Username"
	HeaderAPIKey   = "X-Push-Api-Key"
)

// Forwarder relays push summaries to the third-party push service over HTTP.
// A Forwarder without an endpoint is valid but reports itself unconfigured.
type Forwarder struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.PushForwarder = (*Forwarder)(nil)

// NewForwarder validates endpoint and builds a Forwarder. An empty endpoint
// yields an unconfigured forwarder.
func NewForwarder(endpoint string, timeout time.Duration, logger *slog.Logger) (*Forwarder, error) {
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid push endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("push endpoint must use http or https scheme, got %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("push endpoint must include a host")
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &Forwarder{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With("component", "push_forwarder"),
	}, nil
}

// Configured reports whether an endpoint is set.
func (f *Forwarder) Configured() bool {
	return f.endpoint != ""
}

// Forward POSTs summary as JSON, authenticated with creds.
func (f *Forwarder) Forward(ctx context.Context, creds domain.PushCredentials, summary domain.PushSummary) error {
	if !f.Configured() {
		return apperrors.ErrChannelNotConfigured
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal push summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderUsername, creds.Username)
	req.Header.Set(HeaderAPIKey, creds.APIKey)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: push request: %w", apperrors.ErrDeliveryFailed, err)
	}
	defer func() {
		// Drain and close body to reuse connections.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: push service returned HTTP %d", apperrors.ErrDeliveryFailed, resp.StatusCode)
	}

	f.logger.DebugContext(ctx, "push forwarded",
		"ticket_id", summary.TicketID,
		"type", string(summary.Kind),
		"users", len(summary.AccountIDs),
		"duration", time.Since(start),
	)
	return nil
}

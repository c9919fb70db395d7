package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

var testCreds = domain.PushCredentials{Username: "desk", APIKey: "k-123"}

func testSummary() domain.PushSummary {
	return domain.PushSummary{
		Kind:       domain.EventCommentAdded,
		TicketID:   "T1",
		TicketUID:  1001,
		Title:      "Printer on fire",
		Content:    "Have you tried water?",
		Hostname:   "desk.example.com",
		AccountIDs: []string{"a1", "a2"},
	}
}

func TestForwarder_PostsSummary(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f, err := NewForwarder(srv.URL, time.Second, logging.Discard())
	require.NoError(t, err)
	require.True(t, f.Configured())

	require.NoError(t, f.Forward(context.Background(), testCreds, testSummary()))

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, userAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, "desk", gotHeaders.Get(HeaderUsername))
	assert.Equal(t, "k-123", gotHeaders.Get(HeaderAPIKey))
	assert.Equal(t, "T1", gotBody["ticketId"])
	assert.Equal(t, float64(1001), gotBody["ticketUid"])
	assert.Equal(t, string(domain.EventCommentAdded), gotBody["type"])
	assert.Equal(t, []any{"a1", "a2"}, gotBody["users"])
}

func TestForwarder_Non2xxFails(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			f, err := NewForwarder(srv.URL, time.Second, logging.Discard())
			require.NoError(t, err)

			err = f.Forward(context.Background(), testCreds, testSummary())
			require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
		})
	}
}

func TestForwarder_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f, err := NewForwarder(url, time.Second, logging.Discard())
	require.NoError(t, err)

	err = f.Forward(context.Background(), testCreds, testSummary())
	require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
}

func TestForwarder_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f, err := NewForwarder(srv.URL, 50*time.Millisecond, logging.Discard())
	require.NoError(t, err)

	err = f.Forward(context.Background(), testCreds, testSummary())
	require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
}

func TestForwarder_Unconfigured(t *testing.T) {
	f, err := NewForwarder("", 0, logging.Discard())
	require.NoError(t, err)

	assert.False(t, f.Configured())
	assert.Equal(t, DefaultTimeout, f.httpClient.Timeout)
	require.ErrorIs(t, f.Forward(context.Background(), testCreds, testSummary()), apperrors.ErrChannelNotConfigured)
}

func TestNewForwarder_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"bad scheme", "ftp://push.example.com"},
		{"no host", "https://"},
		{"unparseable", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewForwarder(tt.endpoint, time.Second, logging.Discard())
			require.Error(t, err)
		})
	}
}

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 2 * time.Millisecond
	return cfg
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClient_RetriesServerErrorsWithBody(t *testing.T) {
	var calls atomic.Int32
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody = string(b)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(fastConfig())
	req, err := http.NewRequest(http.MethodPost, srv.URL, stringsReader(`{"city":"Izmir"}`))
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, `{"city":"Izmir"}`, lastBody)
}

func TestClient_DoesNotRetryNotImplemented(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ReturnsLastServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(errors.New("plain")))
	assert.True(t, isRetryable(&timeoutErr{}))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// ---------------------------------------------------------------------------
// CircuitBreakerClient
// ---------------------------------------------------------------------------

func TestDoJSON_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"zone_id":"z-1"}`))
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(New(fastConfig()), DefaultCircuitBreakerConfig("shipping-test-decode"), testLogger())

	var out struct {
		ZoneID string `json:"zone_id"`
	}
	err := cb.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"city": "Izmir"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "z-1", out.ZoneID)
}

func TestDoJSON_MapsDownstreamErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
		reason string
	}{
		{http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"zone"}}`, apperrors.ErrNotFound, ""},
		{http.StatusBadRequest, `bad`, apperrors.ErrInvalidInput, ""},
		{http.StatusUnprocessableEntity, `{"error":{"code":"X","message":"no route","reason":"unroutable"}}`, apperrors.ErrBusinessRule, "unroutable"},
		{http.StatusTeapot, `?`, apperrors.ErrIntegration, ""},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cb := NewCircuitBreakerClient(New(fastConfig()), DefaultCircuitBreakerConfig("shipping-test-map"), testLogger())
			err := cb.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.reason, apperrors.ReasonOf(err))
		})
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cbCfg := DefaultCircuitBreakerConfig("shipping-test-open")
	cbCfg.MinRequests = 3
	cb := NewCircuitBreakerClient(New(cfg), cbCfg, testLogger())

	for i := 0; i < 3; i++ {
		err := cb.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)
		assert.ErrorIs(t, err, apperrors.ErrIntegration)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	err := cb.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func stringsReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}

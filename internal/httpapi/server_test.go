package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/engine"
	"github.com/alphawatch/alphawatch/internal/ingest"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

type memStore struct {
	windows map[string][]domain.TransactionRecord
	pingErr error
}

func (m *memStore) Append(_ context.Context, token string, rec domain.TransactionRecord) error {
	m.windows[token] = append(m.windows[token], rec)
	return nil
}

func (m *memStore) Read(_ context.Context, token string) ([]domain.TransactionRecord, error) {
	return m.windows[token], nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }
func (m *memStore) Close() error               { return nil }

type nopNotifier struct{}

func (nopNotifier) Dispatch(context.Context, []domain.ConfluenceEvent) {}

type staticRoster struct{ set *domain.TrackedSet }

func (s staticRoster) Snapshot() *domain.TrackedSet { return s.set }

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()

	windows := &memStore{windows: map[string][]domain.TransactionRecord{}}
	reg := metrics.NewRegistry()
	set := domain.NewTrackedSet(map[string]domain.TrackedProfile{
		"A1": {TraderType: domain.TraderAlpha},
		"A2": {TraderType: domain.TraderAlpha},
	})

	pipeline := engine.NewPipeline(
		ingest.NewNormalizer(reg, zerolog.Nop()),
		windows,
		staticRoster{set: set},
		nopNotifier{},
		engine.DefaultParams(),
		reg,
		zerolog.Nop(),
	)

	srv := NewServer(ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
	}, pipeline, windows, reg, zerolog.Nop())

	return srv, windows
}

func TestWebhookEndpoint(t *testing.T) {
	srv, windows := newTestServer(t)

	body, err := json.Marshal([]ingest.SwapEvent{
		{WalletAddress: "A1", TokenAddress: "MINT", IsBuy: true, USDValue: 100, Timestamp: time.Now().Unix()},
		{WalletAddress: "nobody", TokenAddress: "MINT", IsBuy: true, USDValue: 100, Timestamp: time.Now().Unix()},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var resp struct {
		Status   string `json:"status"`
		Accepted int    `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, resp.Accepted)
	assert.Len(t, windows.windows["MINT"], 1)
}

func TestWebhookEndpointAlwaysAnswersSuccess(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader([]byte("garbage")))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "undecodable deliveries are not worth provider retries")
}

func TestHealthEndpoint(t *testing.T) {
	srv, windows := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "healthy", resp["store"])

	windows.pingErr = errors.New("down")
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code, "store loss degrades the report, not the process")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp["store"])
}

func TestInjectEndpoint(t *testing.T) {
	srv, windows := newTestServer(t)

	rec := domain.TransactionRecord{
		Wallet:     "A1",
		Token:      "MINT",
		Side:       domain.SideBuy,
		USDAmount:  250,
		Timestamp:  time.Now().UTC(),
		TraderType: domain.TraderAlpha,
	}
	body, err := json.Marshal(rec)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/inject", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, windows.windows["MINT"], 1)

	// Invalid record is rejected before it reaches the store.
	req = httptest.NewRequest(http.MethodPost, "/admin/inject", bytes.NewReader([]byte(`{"wallet":"A1"}`)))
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, windows.windows["MINT"], 1)
}

func TestEvaluateEndpoint(t *testing.T) {
	srv, windows := newTestServer(t)

	now := time.Now().UTC()
	windows.windows["MINT"] = []domain.TransactionRecord{
		{Wallet: "A1", Token: "MINT", Side: domain.SideBuy, USDAmount: 100, Timestamp: now, TraderType: domain.TraderAlpha},
		{Wallet: "A2", Token: "MINT", Side: domain.SideBuy, USDAmount: 200, Timestamp: now.Add(time.Minute), TraderType: domain.TraderAlpha},
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/evaluate/MINT", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Events []domain.ConfluenceEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, domain.RuleAlphaConfluence, resp.Events[0].Rule)
}

func TestNotFoundIsJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/hmacsig"
	"github.com/openmomo/ledgerd/pkg/pipeline"
	"github.com/openmomo/ledgerd/pkg/rollup"
	"github.com/openmomo/ledgerd/pkg/scheduler"
	"github.com/openmomo/ledgerd/pkg/storage/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	b := bus.New(16, logger)
	t.Cleanup(b.Shutdown)

	agg := rollup.NewAggregator(store, store, logger)
	pipe := pipeline.New(store, agg, b, logger)
	registry := connectors.NewRegistry()
	sched := scheduler.New(store, registry, pipe, agg, b, logger)

	return NewRouter(Deps{
		Store:    store,
		Pipeline: pipe,
		Agg:      agg,
		Runner:   sched,
		Registry: registry,
		Bus:      b,
		Verifier: hmacsig.NewVerifier("secret", nil, 0),
		Logger:   logger,
	})
}

func TestRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/transactions", http.StatusOK},
		{http.MethodGet, "/api/devices", http.StatusOK},
		{http.MethodGet, "/api/integrations", http.StatusOK},
		{http.MethodGet, "/api/reports/summary", http.StatusBadRequest},
		{http.MethodGet, "/api/reports/export.csv", http.StatusOK},
		{http.MethodPost, "/ingest/transactions/batch", http.StatusUnauthorized},
		{http.MethodPost, "/ingest/heartbeat", http.StatusBadRequest},
		{http.MethodGet, "/api/transactions/unknown", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.target, nil))
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

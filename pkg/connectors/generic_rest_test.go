package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericRestMockMode(t *testing.T) {
	conn := NewGenericRest(resty.New())
	fixed := time.Date(2025, 1, 21, 7, 0, 0, 0, time.UTC)
	conn.now = func() time.Time { return fixed }

	events, err := conn.FetchSince(context.Background(), map[string]string{"base_url": "mock:demo"}, time.Time{}, fixed)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "EXT_GENERIC", ev.Provider)
	assert.Equal(t, "deposit", ev.Direction)
	assert.Equal(t, int64(10000), ev.Amount)
	assert.Equal(t, "UGX", ev.Currency)
	assert.Equal(t, fmt.Sprintf("DEMO-%d", fixed.UnixMilli()), ev.ExternalRef)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), ev.OccurredAt)
}

func TestGenericRestFetchSince(t *testing.T) {
	since := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		assert.Equal(t, since.Format(time.RFC3339Nano), r.URL.Query().Get("since"))
		assert.Equal(t, until.Format(time.RFC3339Nano), r.URL.Query().Get("until"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"provider":"MTN_UG","direction":"deposit","amount":2500,"currency":"UGX","from":"+256700000001","to":"+256700000002","external_ref":"R-1","occurred_at":"2025-01-20T10:00:00Z","raw_text":"dep"},
			{"direction":"withdrawal","amount":"1200","id":"R-2","timestamp":"2025-01-20T11:00:00Z"}
		]}`)
	}))
	defer server.Close()

	conn := NewGenericRest(resty.New())
	cfg := map[string]string{"base_url": server.URL, "api_key": "sekrit"}

	events, err := conn.FetchSince(context.Background(), cfg, since, until)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "MTN_UG", events[0].Provider)
	assert.Equal(t, "R-1", events[0].ExternalRef)
	assert.Equal(t, "+256700000001", events[0].FromMsisdn)

	// Aliased fields and defaults on the sparse record.
	assert.Equal(t, "EXT_GENERIC", events[1].Provider)
	assert.Equal(t, int64(1200), events[1].Amount)
	assert.Equal(t, "UGX", events[1].Currency)
	assert.Equal(t, "R-2", events[1].ExternalRef)
	assert.Equal(t, "2025-01-20T11:00:00Z", events[1].OccurredAt)
	assert.NotEmpty(t, events[1].RawText)
}

func TestGenericRestFetchSinceUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	conn := NewGenericRest(resty.New())
	_, err := conn.FetchSince(context.Background(), map[string]string{"base_url": server.URL}, time.Time{}, time.Now())
	assert.ErrorContains(t, err, "connector HTTP 502")
}

func TestGenericRestFetchSinceNoBaseURL(t *testing.T) {
	conn := NewGenericRest(resty.New())
	events, err := conn.FetchSince(context.Background(), map[string]string{}, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGenericRestTestConnection(t *testing.T) {
	conn := NewGenericRest(resty.New())

	t.Run("Mock Always OK", func(t *testing.T) {
		probe := conn.TestConnection(context.Background(), map[string]string{"base_url": "mock:demo"})
		assert.True(t, probe.OK)
	})

	t.Run("Missing Base URL", func(t *testing.T) {
		probe := conn.TestConnection(context.Background(), map[string]string{})
		assert.False(t, probe.OK)
		assert.Equal(t, "missing base_url", probe.Error)
	})

	t.Run("Reachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
		}))
		defer server.Close()

		probe := conn.TestConnection(context.Background(), map[string]string{"base_url": server.URL})
		assert.True(t, probe.OK)
	})

	t.Run("Upstream Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		probe := conn.TestConnection(context.Background(), map[string]string{"base_url": server.URL})
		assert.False(t, probe.OK)
		assert.Equal(t, "HTTP 500", probe.Error)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewGenericRest(resty.New()))

	c, err := reg.Lookup(GenericRestKey)
	require.NoError(t, err)
	assert.Equal(t, GenericRestKey, c.Key())

	_, err = reg.Lookup("smtp")
	assert.ErrorContains(t, err, "unknown provider type")

	assert.Equal(t, []string{GenericRestKey}, reg.Keys())
}

package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/pipeline"
	"github.com/openmomo/ledgerd/pkg/rollup"
	"github.com/openmomo/ledgerd/pkg/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type stubConnector struct {
	mu          sync.Mutex
	key         string
	events      []models.RawEvent
	err         error
	block       chan struct{}
	calls       int
	since       time.Time
	until       time.Time
	hadDeadline bool
}

func (c *stubConnector) Key() string { return c.key }

func (c *stubConnector) FetchSince(ctx context.Context, cfg map[string]string, since, until time.Time) ([]models.RawEvent, error) {
	c.mu.Lock()
	c.calls++
	c.since, c.until = since, until
	_, c.hadDeadline = ctx.Deadline()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return c.events, c.err
}

func (c *stubConnector) TestConnection(ctx context.Context, cfg map[string]string) connectors.Probe {
	return connectors.Probe{OK: true}
}

func (c *stubConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type testHarness struct {
	sched *Scheduler
	store *memory.Store
	clock *fakeClock
	bus   *bus.Broadcaster
	conn  *stubConnector
}

func newTestScheduler(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	b := bus.New(16, logger)
	t.Cleanup(b.Shutdown)

	conn := &stubConnector{key: "generic-rest"}
	agg := rollup.NewAggregator(store, store, logger)
	pipe := pipeline.New(store, agg, b, logger)

	clock := &fakeClock{now: time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)}
	sched := New(store, connectors.NewRegistry(conn), pipe, agg, b, logger).WithClock(clock)

	return &testHarness{sched: sched, store: store, clock: clock, bus: b, conn: conn}
}

func putIntegration(t *testing.T, h *testHarness, integ models.Integration) {
	t.Helper()
	if integ.Status == "" {
		integ.Status = models.IntegrationIdle
	}
	require.NoError(t, h.store.PutIntegration(context.Background(), &integ))
}

func TestRunIntegration(t *testing.T) {
	ctx := context.Background()

	t.Run("Success Advances Watermark", func(t *testing.T) {
		h := newTestScheduler(t)
		h.conn.events = []models.RawEvent{{
			Provider: "MTN_UG", Direction: "deposit", Amount: 5000, Currency: "UGX",
			ExternalRef: "S-1", OccurredAt: "2025-01-21T08:00:00Z",
		}}
		putIntegration(t, h, models.Integration{Id: "i1", Name: "mtn", ProviderType: "generic-rest", Enabled: true})

		sub := h.bus.Subscribe()
		defer h.bus.Unsubscribe(sub)

		integ, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		accepted, err := h.sched.RunIntegration(ctx, *integ)
		require.NoError(t, err)
		assert.Equal(t, 1, accepted)

		// Window for a first run reaches 24h back and ends at the clock time.
		assert.Equal(t, h.clock.Now().Add(-24*time.Hour), h.conn.since)
		assert.Equal(t, h.clock.Now(), h.conn.until)

		got, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, models.IntegrationOK, got.Status)
		require.NotNil(t, got.LastRunAt)
		assert.Equal(t, h.clock.Now(), *got.LastRunAt)

		tx, err := h.store.GetTransaction(ctx, "MTN_UG:S-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), tx.Amount)

		// tx:new from the pipeline, then the run notification.
		names := []string{(<-sub.C).Name, (<-sub.C).Name}
		assert.Contains(t, names, pipeline.EventTxNew)
		assert.Contains(t, names, EventIntegrationsRun)
	})

	t.Run("Fetch Failure Keeps Watermark", func(t *testing.T) {
		h := newTestScheduler(t)
		h.conn.err = assert.AnError
		last := time.Date(2025, 1, 21, 9, 0, 0, 0, time.UTC)
		putIntegration(t, h, models.Integration{Id: "i1", ProviderType: "generic-rest", Enabled: true, LastRunAt: &last})

		integ, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		_, err = h.sched.RunIntegration(ctx, *integ)
		require.Error(t, err)

		got, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, models.IntegrationError, got.Status)
		require.NotNil(t, got.LastRunAt)
		assert.Equal(t, last, *got.LastRunAt)

		// The failed run's window started at the old watermark.
		assert.Equal(t, last, h.conn.since)
	})

	t.Run("Unknown Provider Type", func(t *testing.T) {
		h := newTestScheduler(t)
		putIntegration(t, h, models.Integration{Id: "i1", ProviderType: "smtp", Enabled: true})

		integ, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		_, err = h.sched.RunIntegration(ctx, *integ)
		assert.ErrorContains(t, err, "unknown provider type")

		got, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, models.IntegrationError, got.Status)
	})

	t.Run("Fetch Is Deadline Bounded", func(t *testing.T) {
		h := newTestScheduler(t)
		putIntegration(t, h, models.Integration{Id: "i1", ProviderType: "generic-rest", Enabled: true})

		integ, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)
		_, err = h.sched.RunIntegration(context.Background(), *integ)
		require.NoError(t, err)

		// A hung upstream must surface as a timeout, not wedge the tick
		// loop, so the run context carries a deadline.
		assert.True(t, h.conn.hadDeadline)
	})

	t.Run("Overlapping Run Skipped", func(t *testing.T) {
		h := newTestScheduler(t)
		h.conn.block = make(chan struct{})
		putIntegration(t, h, models.Integration{Id: "i1", ProviderType: "generic-rest", Enabled: true})

		integ, err := h.store.GetIntegration(ctx, "i1")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := h.sched.RunIntegration(ctx, *integ)
			done <- err
		}()

		require.Eventually(t, func() bool { return h.conn.callCount() == 1 }, time.Second, time.Millisecond)

		// Second invocation returns immediately without a second fetch.
		skipped, err := h.sched.RunIntegration(ctx, *integ)
		require.NoError(t, err)
		assert.Zero(t, skipped)
		assert.Equal(t, 1, h.conn.callCount())

		close(h.conn.block)
		require.NoError(t, <-done)
	})
}

func TestRunDue(t *testing.T) {
	ctx := context.Background()

	t.Run("Polls Only Due Integrations", func(t *testing.T) {
		h := newTestScheduler(t)
		recent := h.clock.Now().Add(-10 * time.Second)
		putIntegration(t, h, models.Integration{Id: "fresh", ProviderType: "generic-rest", Enabled: true, PollIntervalSec: 60, LastRunAt: &recent})
		putIntegration(t, h, models.Integration{Id: "never-ran", ProviderType: "generic-rest", Enabled: true, PollIntervalSec: 60})

		require.NoError(t, h.sched.RunDue(ctx))
		assert.Equal(t, 1, h.conn.callCount())

		fresh, err := h.store.GetIntegration(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, recent, *fresh.LastRunAt)
	})

	t.Run("Paused Integrations Skipped", func(t *testing.T) {
		h := newTestScheduler(t)
		putIntegration(t, h, models.Integration{Id: "p", ProviderType: "generic-rest", Enabled: true, Status: models.IntegrationPaused})

		require.NoError(t, h.sched.RunDue(ctx))
		assert.Zero(t, h.conn.callCount())
	})

	t.Run("One Failure Does Not Block Others", func(t *testing.T) {
		h := newTestScheduler(t)
		putIntegration(t, h, models.Integration{Id: "bad", ProviderType: "smtp", Enabled: true})
		putIntegration(t, h, models.Integration{Id: "good", ProviderType: "generic-rest", Enabled: true})

		assert.Error(t, h.sched.RunDue(ctx))
		assert.Equal(t, 1, h.conn.callCount())

		good, err := h.store.GetIntegration(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, models.IntegrationOK, good.Status)
	})
}

func TestNightlyRebuild(t *testing.T) {
	ctx := context.Background()
	h := newTestScheduler(t)

	// Yesterday's transaction, already counted once.
	occurred := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	_, err := h.store.UpsertTransaction(ctx, &models.Transaction{
		IdKey: "y1", Provider: "MTN_UG", Type: models.Deposit, Amount: 3000,
		Currency: "UGX", Status: models.SUCCESS, OccurredAt: occurred, CreatedAt: occurred,
	})
	require.NoError(t, err)

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	// 00:06 local time on Jan 21 (21:06 UTC Jan 20 is 00:06 UTC+3 Jan 21).
	h.clock.Set(time.Date(2025, 1, 20, 21, 6, 0, 0, time.UTC))
	h.sched.Tick(ctx)

	bucket, err := h.store.GetRollupBucket(ctx, "2025-01-20", models.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), bucket.DepositSum)
	assert.Equal(t, int64(1), bucket.DepositCount)

	ev := <-sub.C
	assert.Equal(t, EventRollupsUpdated, ev.Name)

	// A second tick in the same window does not rebuild again.
	before := *bucket
	h.clock.Set(time.Date(2025, 1, 20, 21, 7, 0, 0, time.UTC))
	h.sched.Tick(ctx)

	after, err := h.store.GetRollupBucket(ctx, "2025-01-20", models.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, before.Totals, after.Totals)
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %q after duplicate tick", ev.Name)
	default:
	}
}

func TestTickBeforeRebuildTime(t *testing.T) {
	h := newTestScheduler(t)
	// 00:02 local on Jan 21, just short of the 00:05 threshold.
	h.clock.Set(time.Date(2025, 1, 20, 21, 2, 0, 0, time.UTC))
	h.sched.Tick(context.Background())
	assert.Empty(t, h.sched.lastRebuildDay)
}

func TestRebuildAfterMissedWindow(t *testing.T) {
	ctx := context.Background()
	h := newTestScheduler(t)

	occurred := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	_, err := h.store.UpsertTransaction(ctx, &models.Transaction{
		IdKey: "y1", Provider: "MTN_UG", Type: models.Deposit, Amount: 3000,
		Currency: "UGX", Status: models.SUCCESS, OccurredAt: occurred, CreatedAt: occurred,
	})
	require.NoError(t, err)

	// The process was down across midnight; its first tick back up lands
	// mid-morning and still heals yesterday's buckets.
	h.clock.Set(time.Date(2025, 1, 21, 7, 30, 0, 0, time.UTC)) // 10:30 local
	h.sched.Tick(ctx)

	bucket, err := h.store.GetRollupBucket(ctx, "2025-01-20", models.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bucket.DepositCount)
	assert.Equal(t, "2025-01-20", h.sched.lastRebuildDay)
}

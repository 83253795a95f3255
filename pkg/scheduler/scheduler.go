package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/metrics"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/pipeline"
	"github.com/openmomo/ledgerd/pkg/storage"
	"github.com/openmomo/ledgerd/pkg/timebucket"
)

const (
	EventIntegrationsRun = "integrations:run"
	EventRollupsUpdated  = "rollups:updated"

	// Fallback poll cadence when an integration does not set its own.
	defaultPollInterval = time.Minute

	// Watermark for integrations that have never run.
	initialLookback = 24 * time.Hour

	// Earliest local time of day the nightly rebuild may run.
	rebuildAfterMidnight = 5 * time.Minute

	// Upper bounds on one connector run and one nightly rebuild, so a hung
	// upstream or store call surfaces as a retryable error instead of
	// wedging the tick loop.
	runTimeout     = 2 * time.Minute
	rebuildTimeout = 5 * time.Minute
)

// Clock abstracts wall time so tick logic can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Ingester accepts a batch of raw events from a connector run.
type Ingester interface {
	IngestBatch(ctx context.Context, source string, events []models.RawEvent) (pipeline.Result, error)
}

// Rebuilder recomputes the rollup buckets for one local day.
type Rebuilder interface {
	RebuildDay(ctx context.Context, day time.Time) error
}

// Scheduler drives the periodic work of the service: polling enabled
// integrations for new events and rebuilding yesterday's rollup buckets
// shortly after local midnight.
type Scheduler struct {
	integrations storage.IntegrationStore
	registry     *connectors.Registry
	ingester     Ingester
	rebuilder    Rebuilder
	bus          *bus.Broadcaster
	logger       *slog.Logger
	clock        Clock

	mu      sync.Mutex
	running map[string]bool

	// Local day key of the last nightly rebuild, so one tick window
	// cannot trigger it twice.
	lastRebuildDay string

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Scheduler. Start must be called to begin ticking.
func New(integrations storage.IntegrationStore, registry *connectors.Registry, ingester Ingester, rebuilder Rebuilder, b *bus.Broadcaster, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		integrations: integrations,
		registry:     registry,
		ingester:     ingester,
		rebuilder:    rebuilder,
		bus:          b,
		logger:       logger,
		clock:        SystemClock(),
		running:      make(map[string]bool),
		stop:         make(chan struct{}),
	}
}

// WithClock overrides the scheduler's clock.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// Start launches the tick loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(defaultPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Tick(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the tick loop, letting any in-flight runs finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Tick performs one scheduling pass: due integrations are polled and, in the
// window after local midnight, yesterday's rollups are rebuilt.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.RunDue(ctx); err != nil {
		s.logger.Error("scheduling pass failed", "error", err)
	}
	s.maybeRebuildRollups(ctx)
}

// RunDue polls every enabled integration whose interval has elapsed.
// Integrations run in parallel; one failing integration does not block the
// others, but its error is reported.
func (s *Scheduler) RunDue(ctx context.Context) error {
	integs, err := s.integrations.ListEnabledIntegrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list integrations: %w", err)
	}

	now := s.clock.Now()
	var g errgroup.Group
	for _, integ := range integs {
		if integ.Status == models.IntegrationPaused || !s.due(integ, now) {
			continue
		}
		integ := integ
		g.Go(func() error {
			if _, err := s.RunIntegration(ctx, integ); err != nil {
				s.logger.Error("integration run failed", "id", integ.Id, "provider_type", integ.ProviderType, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) due(integ models.Integration, now time.Time) bool {
	if integ.LastRunAt == nil {
		return true
	}
	interval := defaultPollInterval
	if integ.PollIntervalSec > 0 {
		interval = time.Duration(integ.PollIntervalSec) * time.Second
	}
	return now.Sub(*integ.LastRunAt) >= interval
}

// RunIntegration executes one connector run for the given integration and
// returns the number of accepted events. A run already in flight for the same
// integration is skipped, so overlapping ticks and manual triggers cannot
// double-poll a source. On success the watermark advances to the run's upper
// bound; on failure it stays put so the next run re-covers the window.
func (s *Scheduler) RunIntegration(ctx context.Context, integ models.Integration) (int, error) {
	s.mu.Lock()
	if s.running[integ.Id] {
		s.mu.Unlock()
		s.logger.Info("integration already running, skipping", "id", integ.Id)
		return 0, nil
	}
	s.running[integ.Id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, integ.Id)
		s.mu.Unlock()
	}()

	connector, err := s.registry.Lookup(integ.ProviderType)
	if err != nil {
		s.fail(ctx, integ, err)
		return 0, err
	}

	until := s.clock.Now()
	since := until.Add(-initialLookback)
	if integ.LastRunAt != nil {
		since = *integ.LastRunAt
	}

	// The run itself is deadline-bounded; the error bookkeeping below uses
	// the parent context so a timed-out run can still be marked errored.
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	events, err := connector.FetchSince(runCtx, integ.Config, since, until)
	if err != nil {
		s.fail(ctx, integ, err)
		return 0, fmt.Errorf("fetch failed: %w", err)
	}

	result, err := s.ingester.IngestBatch(runCtx, "connector:"+integ.Id, events)
	if err != nil {
		s.fail(ctx, integ, err)
		return result.Accepted, fmt.Errorf("ingest failed: %w", err)
	}

	if err := s.integrations.UpdateIntegrationRun(ctx, integ.Id, models.IntegrationOK, &until); err != nil {
		return result.Accepted, fmt.Errorf("failed to record run: %w", err)
	}

	metrics.ConnectorRuns.WithLabelValues(integ.ProviderType, "ok").Inc()
	s.bus.Publish(EventIntegrationsRun, map[string]any{"id": integ.Id, "upserted": result.Accepted})
	s.logger.Info("integration run complete", "id", integ.Id, "accepted", result.Accepted, "rejected", result.Rejected)
	return result.Accepted, nil
}

// fail marks the integration errored without advancing its watermark.
func (s *Scheduler) fail(ctx context.Context, integ models.Integration, cause error) {
	metrics.ConnectorRuns.WithLabelValues(integ.ProviderType, "error").Inc()
	if err := s.integrations.UpdateIntegrationRun(ctx, integ.Id, models.IntegrationError, nil); err != nil {
		s.logger.Error("failed to mark integration errored", "id", integ.Id, "cause", cause, "error", err)
	}
}

// maybeRebuildRollups rebuilds yesterday's buckets once per local day, on the
// first tick at or after 00:05 local time.
func (s *Scheduler) maybeRebuildRollups(ctx context.Context) {
	now := s.clock.Now()
	// Any tick at or after 00:05 local qualifies, so a process that was
	// down across the midnight window still heals the day on its first
	// tick back up.
	if now.Before(timebucket.StartOfDay(now).Add(rebuildAfterMidnight)) {
		return
	}

	yesterday := now.Add(-24 * time.Hour)
	dayKey := timebucket.DailyKey(yesterday)
	if s.lastRebuildDay == dayKey {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, rebuildTimeout)
	defer cancel()

	if err := s.rebuilder.RebuildDay(ctx, yesterday); err != nil {
		s.logger.Error("nightly rollup rebuild failed", "bucket", dayKey, "error", err)
		return
	}
	s.lastRebuildDay = dayKey
	s.bus.Publish(EventRollupsUpdated, map[string]string{"bucket": dayKey})
	s.logger.Info("nightly rollup rebuild complete", "bucket", dayKey)
}

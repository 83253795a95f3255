// Package pipeline orchestrates batch ingestion: validation, idempotency
// keying, ledger upserts, rollup updates and change notifications.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/idempotency"
	"github.com/openmomo/ledgerd/pkg/metrics"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// DefaultCurrency is assumed when a source omits the currency code.
const DefaultCurrency = "UGX"

// EventTxNew is published after every batch that accepted at least one event.
const EventTxNew = "tx:new"

// Result reports the per-event outcome of one batch.
type Result struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// pipelineStore is the slice of storage the pipeline writes to.
type pipelineStore interface {
	storage.TransactionWriter
	storage.IngestAuditStore
}

// Aggregator is the rollup surface the pipeline drives. It is invoked at
// most once per idempotency key per status change into SUCCESS.
type Aggregator interface {
	Apply(ctx context.Context, tx models.Transaction) error
}

// Pipeline ingests raw event batches into the ledger.
type Pipeline struct {
	store  pipelineStore
	agg    Aggregator
	bus    *bus.Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(store pipelineStore, agg Aggregator, b *bus.Broadcaster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		agg:    agg,
		bus:    b,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// normalize validates one raw event and maps it to a ledger transaction.
func (p *Pipeline) normalize(ev models.RawEvent) (*models.Transaction, error) {
	if ev.Provider == "" {
		return nil, errors.New("provider is required")
	}
	if ev.Amount < 0 {
		return nil, fmt.Errorf("amount must be non-negative, got %d", ev.Amount)
	}

	var txType models.TransactionType
	switch strings.ToLower(ev.Direction) {
	case string(models.Deposit):
		txType = models.Deposit
	case string(models.Withdrawal):
		txType = models.Withdrawal
	default:
		return nil, fmt.Errorf("unrecognized direction %q", ev.Direction)
	}

	if ev.OccurredAt == "" {
		return nil, errors.New("occurred_at is required")
	}
	occurredAt, err := time.Parse(time.RFC3339, ev.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("invalid occurred_at %q: %w", ev.OccurredAt, err)
	}

	currency := ev.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	return &models.Transaction{
		IdKey:       idempotency.BuildKey(ev.Provider, ev.ExternalRef, ev.RawText, ev.OccurredAt),
		Provider:    ev.Provider,
		Type:        txType,
		Amount:      ev.Amount,
		Currency:    currency,
		FromMsisdn:  ev.FromMsisdn,
		ToMsisdn:    ev.ToMsisdn,
		ExternalRef: ev.ExternalRef,
		Status:      models.SUCCESS,
		OccurredAt:  occurredAt.UTC(),
		RawPayload:  raw,
		CreatedAt:   p.now(),
	}, nil
}

// IngestBatch ingests events one by one. Malformed events are rejected and
// counted without aborting the batch; the batch always runs to completion
// over its input. Storage failures also reject the affected event but are
// additionally surfaced in the returned error once the batch finishes.
func (p *Pipeline) IngestBatch(ctx context.Context, source string, events []models.RawEvent) (Result, error) {
	start := time.Now()
	var result Result
	var errs []error

	for _, ev := range events {
		tx, err := p.normalize(ev)
		if err != nil {
			result.Rejected++
			metrics.EventsRejected.Inc()
			p.logger.Warn("rejected inbound event", "source", source, "provider", ev.Provider, "error", err)
			continue
		}

		upsert, err := p.store.UpsertTransaction(ctx, tx)
		if err != nil {
			result.Rejected++
			metrics.EventsRejected.Inc()
			errs = append(errs, fmt.Errorf("upsert %s: %w", tx.IdKey, err))
			continue
		}

		if upsert.Counts() {
			if err := p.agg.Apply(ctx, *tx); err != nil {
				// The ledger write stands; the bucket heals on the
				// next scheduled rebuild.
				p.logger.Error("rollup update failed", "id_key", tx.IdKey, "error", err)
				errs = append(errs, fmt.Errorf("rollup %s: %w", tx.IdKey, err))
			}
		}

		result.Accepted++
		metrics.EventsAccepted.Inc()
	}

	if len(events) > 0 {
		audit := models.IngestEvent{
			Id:        uuid.New().String(),
			Source:    source,
			Size:      len(events),
			CreatedAt: p.now(),
		}
		if err := p.store.AppendIngestEvent(ctx, audit); err != nil {
			p.logger.Error("failed to append ingest audit record", "source", source, "error", err)
		}
	}

	if result.Accepted > 0 {
		p.bus.Publish(EventTxNew, map[string]int{"size": result.Accepted})
	}

	metrics.IngestBatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	return result, errors.Join(errs...)
}

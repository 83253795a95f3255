// Package rollup maintains the per-bucket, per-provider aggregates derived
// from ledger writes, and serves reporting summaries from either the
// precomputed buckets or a raw scan.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/openmomo/ledgerd/pkg/metrics"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
	"github.com/openmomo/ledgerd/pkg/timebucket"
)

// Granularity selects the calendar bucket size of a reporting query.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates a granularity string, defaulting to daily.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "", string(Daily):
		return Daily, nil
	case string(Weekly):
		return Weekly, nil
	case string(Monthly):
		return Monthly, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

func (g Granularity) bucketKey(t time.Time) string {
	switch g {
	case Weekly:
		return timebucket.WeeklyKey(t)
	case Monthly:
		return timebucket.MonthlyKey(t)
	default:
		return timebucket.DailyKey(t)
	}
}

// scanPageSize bounds how many transactions one rebuild/summary page pulls.
const scanPageSize = 1000

// Aggregator maintains the daily rollup buckets.
type Aggregator struct {
	transactions storage.TransactionReader
	rollups      storage.RollupStore
	logger       *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(transactions storage.TransactionReader, rollups storage.RollupStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		transactions: transactions,
		rollups:      rollups,
		logger:       logger,
	}
}

func contribution(tx models.Transaction) models.Totals {
	switch tx.Type {
	case models.Deposit:
		return models.Totals{DepositCount: 1, DepositSum: tx.Amount}
	case models.Withdrawal:
		return models.Totals{WithdrawalCount: 1, WithdrawalSum: tx.Amount}
	default:
		return models.Totals{}
	}
}

// Apply increments the daily bucket counters for one newly counted SUCCESS
// transaction, in both the all-providers scope and the transaction's own
// provider scope. The caller guarantees at-most-once invocation per
// idempotency key per status change.
func (a *Aggregator) Apply(ctx context.Context, tx models.Transaction) error {
	if tx.Status != models.SUCCESS {
		return nil
	}
	delta := contribution(tx)
	if delta.IsZero() {
		return nil
	}

	bucket := timebucket.DailyKey(tx.OccurredAt)
	if err := a.rollups.ApplyRollupDelta(ctx, bucket, models.ScopeAll, delta); err != nil {
		return fmt.Errorf("failed to apply all-providers delta: %w", err)
	}
	if err := a.rollups.ApplyRollupDelta(ctx, bucket, tx.Provider, delta); err != nil {
		return fmt.Errorf("failed to apply provider delta: %w", err)
	}
	return nil
}

// scanSuccess walks every SUCCESS transaction in [from, to] and hands each to
// visit, paging through the store by cursor.
func (a *Aggregator) scanSuccess(ctx context.Context, from, to time.Time, provider string, visit func(models.Transaction)) error {
	filter := storage.TransactionFilter{
		Provider: provider,
		Status:   models.SUCCESS,
		From:     &from,
		To:       &to,
		Limit:    scanPageSize,
	}
	for {
		page, cursor, err := a.transactions.QueryTransactions(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to scan transactions: %w", err)
		}
		for _, tx := range page {
			visit(tx)
		}
		// A short page does not mean the range is exhausted; only a nil
		// cursor does.
		if cursor == nil {
			return nil
		}
		filter.Cursor = cursor
	}
}

// RebuildDay recomputes one local day's buckets from the ledger, the source
// of truth. Every scope currently stored for the day is zeroed first, so a
// transaction whose status drifted away from SUCCESS after being counted is
// corrected rather than decremented.
func (a *Aggregator) RebuildDay(ctx context.Context, day time.Time) error {
	from := timebucket.StartOfDay(day)
	to := timebucket.EndOfDay(day)
	bucket := timebucket.DailyKey(day)

	byScope := map[string]models.Totals{models.ScopeAll: {}}
	err := a.scanSuccess(ctx, from, to, "", func(tx models.Transaction) {
		delta := contribution(tx)
		all := byScope[models.ScopeAll]
		all.Add(delta)
		byScope[models.ScopeAll] = all

		prov := byScope[tx.Provider]
		prov.Add(delta)
		byScope[tx.Provider] = prov
	})
	if err != nil {
		return err
	}

	// Zero stale scopes that no longer have contributions.
	existing, err := a.rollups.ListRollupScopes(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to list scopes for %s: %w", bucket, err)
	}
	for _, scope := range existing {
		if _, ok := byScope[scope]; !ok {
			byScope[scope] = models.Totals{}
		}
	}

	now := time.Now().UTC()
	for scope, totals := range byScope {
		b := models.RollupBucket{Bucket: bucket, Scope: scope, Totals: totals, UpdatedAt: now}
		if err := a.rollups.PutRollupBucket(ctx, b); err != nil {
			return fmt.Errorf("failed to write bucket %s/%s: %w", bucket, scope, err)
		}
	}

	metrics.RollupRebuilds.Inc()
	a.logger.Info("rebuilt daily rollup", "bucket", bucket, "scopes", len(byScope))
	return nil
}

// RebuildRange rebuilds every local day touching [from, to].
func (a *Aggregator) RebuildRange(ctx context.Context, from, to time.Time) error {
	for _, day := range timebucket.DayStarts(from, to) {
		if err := a.RebuildDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// SummaryQuery describes one reporting request.
type SummaryQuery struct {
	Granularity Granularity
	From        time.Time
	To          time.Time
	Provider    string
	Type        models.TransactionType
}

// Summary returns per-bucket totals for the query, ordered by bucket key.
// Full-day-aligned daily ranges are served from the precomputed buckets;
// everything else is aggregated from raw transactions. Both paths produce
// identical numbers for the same aligned range.
func (a *Aggregator) Summary(ctx context.Context, q SummaryQuery) ([]models.BucketSummary, error) {
	if q.Granularity == Daily && timebucket.IsAlignedFullDays(q.From, q.To) {
		return a.summaryFromBuckets(ctx, q)
	}
	return a.summaryFromScan(ctx, q)
}

// maskType zeroes the counters outside the requested direction so a typed
// query reads the same numbers on both summary paths.
func maskType(t models.Totals, txType models.TransactionType) models.Totals {
	switch txType {
	case models.Deposit:
		return models.Totals{DepositCount: t.DepositCount, DepositSum: t.DepositSum}
	case models.Withdrawal:
		return models.Totals{WithdrawalCount: t.WithdrawalCount, WithdrawalSum: t.WithdrawalSum}
	default:
		return t
	}
}

func (a *Aggregator) summaryFromBuckets(ctx context.Context, q SummaryQuery) ([]models.BucketSummary, error) {
	scope := models.ScopeAll
	if q.Provider != "" {
		scope = q.Provider
	}

	days := timebucket.DayStarts(q.From, q.To)
	out := make([]models.BucketSummary, 0, len(days))
	for _, day := range days {
		bucket := timebucket.DailyKey(day)
		row := models.BucketSummary{Bucket: bucket}
		b, err := a.rollups.GetRollupBucket(ctx, bucket, scope)
		switch {
		case err == nil:
			row.Totals = maskType(b.Totals, q.Type)
		case errors.Is(err, storage.ErrNotFound):
			// Day with no contributions reports zeroes.
		default:
			return nil, fmt.Errorf("failed to read bucket %s: %w", bucket, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (a *Aggregator) summaryFromScan(ctx context.Context, q SummaryQuery) ([]models.BucketSummary, error) {
	byBucket := map[string]models.Totals{}
	err := a.scanSuccess(ctx, q.From, q.To, q.Provider, func(tx models.Transaction) {
		if q.Type != "" && tx.Type != q.Type {
			return
		}
		key := q.Granularity.bucketKey(tx.OccurredAt)
		totals := byBucket[key]
		totals.Add(contribution(tx))
		byBucket[key] = totals
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.BucketSummary, 0, len(byBucket))
	for key, totals := range byBucket {
		out = append(out, models.BucketSummary{Bucket: key, Totals: totals})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

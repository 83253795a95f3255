package storage

import (
	"context"

	"github.com/openmomo/ledgerd/pkg/models"
)

// RollupStore defines the interface for the precomputed daily aggregates.
type RollupStore interface {
	// ApplyRollupDelta atomically increments the counters of one
	// (bucket, scope) pair. Concurrent deltas to the same pair must not
	// lose updates.
	ApplyRollupDelta(ctx context.Context, bucket, scope string, delta models.Totals) error

	// GetRollupBucket retrieves one (bucket, scope) aggregate.
	// Returns ErrNotFound when the bucket has never been written.
	GetRollupBucket(ctx context.Context, bucket, scope string) (*models.RollupBucket, error)

	// PutRollupBucket overwrites one (bucket, scope) aggregate, used by
	// full rebuilds to reset drifted counters.
	PutRollupBucket(ctx context.Context, b models.RollupBucket) error

	// ListRollupScopes returns every scope currently stored for a bucket,
	// so a rebuild can zero scopes that no longer have contributions.
	ListRollupScopes(ctx context.Context, bucket string) ([]string, error)
}

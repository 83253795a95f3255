package storage

import (
	"context"
	"time"

	"github.com/openmomo/ledgerd/pkg/models"
)

// UpsertResult describes what an idempotent transaction write actually did,
// so the caller can decide whether the write contributes to aggregates.
type UpsertResult struct {
	// Created is true when no record existed for the idempotency key.
	Created bool
	// BecameSuccess is true when an existing record transitioned into
	// SUCCESS with this write.
	BecameSuccess bool
}

// Counts reports whether the written transaction should be counted exactly
// once by the rollup aggregator.
func (r UpsertResult) Counts() bool {
	return r.Created || r.BecameSuccess
}

// TransactionFilter narrows a ledger query. Zero values mean "no constraint".
// Time bounds are inclusive on both ends.
type TransactionFilter struct {
	Provider string
	Type     models.TransactionType
	Status   models.TransactionStatus
	From     *time.Time
	To       *time.Time
	Limit    int32
	// Cursor is the occurredAt of the last row of the previous page;
	// results strictly before it are returned (descending order).
	Cursor *time.Time
}

// TransactionReader defines the interface for reading ledger data.
type TransactionReader interface {
	// GetTransaction retrieves a transaction by its idempotency key.
	// Returns ErrNotFound if no record exists.
	GetTransaction(ctx context.Context, idKey string) (*models.Transaction, error)

	// QueryTransactions returns transactions matching the filter, ordered
	// by occurredAt descending, plus the cursor for the next page. A nil
	// cursor means the range is exhausted; a page shorter than the limit
	// does not.
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, *time.Time, error)
}

// TransactionWriter defines the interface for idempotent ledger writes.
type TransactionWriter interface {
	// UpsertTransaction merges tx into the ledger by its idempotency key.
	// Re-applying an identical transaction is a no-op; the first write
	// preserves its CreatedAt on all later merges. Writes to the same key
	// are serialized by the implementation.
	UpsertTransaction(ctx context.Context, tx *models.Transaction) (UpsertResult, error)
}

// TransactionStore combines the reader and writer interfaces.
type TransactionStore interface {
	TransactionReader
	TransactionWriter
}

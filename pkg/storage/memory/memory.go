// Package memory provides an in-memory Storage implementation with the same
// semantics as the DynamoDB store. It backs tests and demo mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// Store implements the Storage interface with mutex-guarded maps.
type Store struct {
	mu           sync.Mutex
	transactions map[string]models.Transaction
	rollups      map[string]models.RollupBucket // key: bucket + "#" + scope
	integrations map[string]models.Integration
	devices      map[string]models.Device
	audit        []models.IngestEvent
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		transactions: make(map[string]models.Transaction),
		rollups:      make(map[string]models.RollupBucket),
		integrations: make(map[string]models.Integration),
		devices:      make(map[string]models.Device),
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

func rollupKey(bucket, scope string) string {
	return bucket + "#" + scope
}

// UpsertTransaction merges tx by idempotency key. The first write's CreatedAt
// is preserved; re-applying an identical value is a no-op.
func (s *Store) UpsertTransaction(ctx context.Context, tx *models.Transaction) (storage.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.transactions[tx.IdKey]
	if !exists {
		s.transactions[tx.IdKey] = *tx
		return storage.UpsertResult{Created: true}, nil
	}

	merged := *tx
	merged.CreatedAt = old.CreatedAt
	s.transactions[tx.IdKey] = merged

	becameSuccess := old.Status != models.SUCCESS && merged.Status == models.SUCCESS
	return storage.UpsertResult{BecameSuccess: becameSuccess}, nil
}

// GetTransaction retrieves a transaction by its idempotency key.
func (s *Store) GetTransaction(ctx context.Context, idKey string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[idKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &tx, nil
}

// QueryTransactions returns matching transactions ordered by occurredAt
// descending. Range bounds are inclusive on both ends.
func (s *Store) QueryTransactions(ctx context.Context, filter storage.TransactionFilter) ([]models.Transaction, *time.Time, error) {
	s.mu.Lock()
	matched := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if filter.Provider != "" && tx.Provider != filter.Provider {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.From != nil && tx.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && tx.OccurredAt.After(*filter.To) {
			continue
		}
		if filter.Cursor != nil && !tx.OccurredAt.Before(*filter.Cursor) {
			continue
		}
		matched = append(matched, tx)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].IdKey < matched[j].IdKey
		}
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	// A cursor is only handed back when the page was cut short, so callers
	// can treat a nil cursor as end of range.
	if filter.Limit > 0 && int32(len(matched)) > filter.Limit {
		matched = matched[:filter.Limit]
		next := matched[len(matched)-1].OccurredAt
		return matched, &next, nil
	}
	return matched, nil, nil
}

// ApplyRollupDelta atomically increments one (bucket, scope) pair.
func (s *Store) ApplyRollupDelta(ctx context.Context, bucket, scope string, delta models.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rollupKey(bucket, scope)
	b, ok := s.rollups[key]
	if !ok {
		b = models.RollupBucket{Bucket: bucket, Scope: scope}
	}
	b.Totals.Add(delta)
	b.UpdatedAt = time.Now().UTC()
	s.rollups[key] = b
	return nil
}

// GetRollupBucket retrieves one (bucket, scope) aggregate.
func (s *Store) GetRollupBucket(ctx context.Context, bucket, scope string) (*models.RollupBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rollups[rollupKey(bucket, scope)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

// PutRollupBucket overwrites one (bucket, scope) aggregate.
func (s *Store) PutRollupBucket(ctx context.Context, b models.RollupBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollups[rollupKey(b.Bucket, b.Scope)] = b
	return nil
}

// ListRollupScopes returns every scope stored for a bucket.
func (s *Store) ListRollupScopes(ctx context.Context, bucket string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scopes []string
	prefix := bucket + "#"
	for key, b := range s.rollups {
		if strings.HasPrefix(key, prefix) {
			scopes = append(scopes, b.Scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

// ListIntegrations returns every configured integration.
func (s *Store) ListIntegrations(ctx context.Context) ([]models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Integration, 0, len(s.integrations))
	for _, integ := range s.integrations {
		out = append(out, integ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// ListEnabledIntegrations returns integrations eligible for polling.
func (s *Store) ListEnabledIntegrations(ctx context.Context) ([]models.Integration, error) {
	all, err := s.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, integ := range all {
		if integ.Enabled {
			enabled = append(enabled, integ)
		}
	}
	return enabled, nil
}

// GetIntegration retrieves one integration by id.
func (s *Store) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	integ, ok := s.integrations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &integ, nil
}

// PutIntegration creates or replaces an integration's configuration.
func (s *Store) PutIntegration(ctx context.Context, integ *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.integrations[integ.Id] = *integ
	return nil
}

// UpdateIntegrationRun records the outcome of one connector run. A nil
// lastRunAt leaves the watermark untouched.
func (s *Store) UpdateIntegrationRun(ctx context.Context, id string, status models.IntegrationStatus, lastRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	integ, ok := s.integrations[id]
	if !ok {
		return storage.ErrNotFound
	}
	integ.Status = status
	if lastRunAt != nil {
		integ.LastRunAt = lastRunAt
	}
	integ.UpdatedAt = time.Now().UTC()
	s.integrations[id] = integ
	return nil
}

// UpsertDeviceHeartbeat merges one heartbeat into the device record.
func (s *Store) UpsertDeviceHeartbeat(ctx context.Context, d models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[d.DeviceId] = d
	return nil
}

// ListDevices returns every known device.
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceId < out[j].DeviceId })
	return out, nil
}

// AppendIngestEvent appends one audit record.
func (s *Store) AppendIngestEvent(ctx context.Context, ev models.IngestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, ev)
	return nil
}

// IngestEventCount reports the number of audit records, for tests.
func (s *Store) IngestEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit)
}

// TransactionCount reports the number of stored transactions, for tests.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

package models

import (
	"encoding/json"
	"time"
)

// TransactionStatus defines the possible states of a ledger transaction.
type TransactionStatus string

const (
	SUCCESS TransactionStatus = "SUCCESS"
	PENDING TransactionStatus = "PENDING"
	FAILED  TransactionStatus = "FAILED"
)

// TransactionType is the normalized direction of a mobile-money transaction.
type TransactionType string

const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
)

// Transaction is the ledger's unit of record, keyed by its idempotency key.
// It includes dynamodbav tags for marshalling.
type Transaction struct {
	IdKey       string            `json:"idKey" dynamodbav:"id_key"`
	Provider    string            `json:"provider" dynamodbav:"provider"`
	Type        TransactionType   `json:"type" dynamodbav:"tx_type"`
	Amount      int64             `json:"amount" dynamodbav:"amount"`
	Currency    string            `json:"currency" dynamodbav:"currency"`
	FromMsisdn  string            `json:"fromMsisdn,omitempty" dynamodbav:"from_msisdn,omitempty"`
	ToMsisdn    string            `json:"toMsisdn,omitempty" dynamodbav:"to_msisdn,omitempty"`
	ExternalRef string            `json:"externalRef,omitempty" dynamodbav:"external_ref,omitempty"`
	Status      TransactionStatus `json:"status" dynamodbav:"tx_status"`
	OccurredAt  time.Time         `json:"occurredAt" dynamodbav:"occurred_at"`
	RawPayload  json.RawMessage   `json:"rawPayload,omitempty" dynamodbav:"raw_payload,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" dynamodbav:"created_at"`
}

// RawEvent is an inbound event as delivered by a connector or a device bridge,
// before validation and normalization.
type RawEvent struct {
	Provider    string `json:"provider"`
	Direction   string `json:"direction"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	FromMsisdn  string `json:"from_msisdn,omitempty"`
	ToMsisdn    string `json:"to_msisdn,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
	OccurredAt  string `json:"occurred_at"`
	RawText     string `json:"raw_text,omitempty"`
}

// Totals holds the running counters for one rollup scope.
type Totals struct {
	DepositCount    int64 `json:"depositCount" dynamodbav:"deposit_count"`
	DepositSum      int64 `json:"depositSum" dynamodbav:"deposit_sum"`
	WithdrawalCount int64 `json:"withdrawalCount" dynamodbav:"withdrawal_count"`
	WithdrawalSum   int64 `json:"withdrawalSum" dynamodbav:"withdrawal_sum"`
}

// Add accumulates other into t.
func (t *Totals) Add(other Totals) {
	t.DepositCount += other.DepositCount
	t.DepositSum += other.DepositSum
	t.WithdrawalCount += other.WithdrawalCount
	t.WithdrawalSum += other.WithdrawalSum
}

// IsZero reports whether every counter is zero.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// ScopeAll is the rollup scope covering every provider.
const ScopeAll = "__all__"

// RollupBucket is the precomputed aggregate for one local calendar day and
// one scope (ScopeAll or a provider name).
type RollupBucket struct {
	Bucket string `json:"bucket" dynamodbav:"bucket"`
	Scope  string `json:"scope" dynamodbav:"scope"`
	Totals
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// BucketSummary is one row of a reporting response.
type BucketSummary struct {
	Bucket string `json:"bucket"`
	Totals
}

// IntegrationStatus defines the lifecycle states of a pull-connector instance.
type IntegrationStatus string

const (
	IntegrationIdle   IntegrationStatus = "IDLE"
	IntegrationOK     IntegrationStatus = "OK"
	IntegrationError  IntegrationStatus = "ERROR"
	IntegrationPaused IntegrationStatus = "PAUSED"
)

// Integration describes one configured pull-connector instance.
type Integration struct {
	Id              string            `json:"id" dynamodbav:"id"`
	Name            string            `json:"name" dynamodbav:"name"`
	ProviderType    string            `json:"providerType" dynamodbav:"provider_type"`
	Enabled         bool              `json:"enabled" dynamodbav:"enabled"`
	PollIntervalSec int               `json:"pollIntervalSec" dynamodbav:"poll_interval_sec"`
	Config          map[string]string `json:"config" dynamodbav:"config"`
	Status          IntegrationStatus `json:"status" dynamodbav:"int_status"`
	LastRunAt       *time.Time        `json:"lastRunAt,omitempty" dynamodbav:"last_run_at,omitempty"`
	CreatedAt       time.Time         `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" dynamodbav:"updated_at"`
}

// Device is the liveness record for one phone bridge.
type Device struct {
	DeviceId        string    `json:"deviceId" dynamodbav:"device_id"`
	Provider        string    `json:"provider,omitempty" dynamodbav:"provider,omitempty"`
	Battery         *int      `json:"battery,omitempty" dynamodbav:"battery,omitempty"`
	QueueSize       int       `json:"queueSize" dynamodbav:"queue_size"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt" dynamodbav:"last_heartbeat_at"`
	Online          bool      `json:"online" dynamodbav:"-"`
}

// IngestEvent is the append-only audit record of one raw inbound batch.
// It is never read back by the pipeline.
type IngestEvent struct {
	Id        string    `json:"id" dynamodbav:"id"`
	Source    string    `json:"source" dynamodbav:"source"`
	Size      int       `json:"size" dynamodbav:"size"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
}

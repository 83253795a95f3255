package storage

import (
	"context"

	"github.com/openmomo/ledgerd/pkg/models"
)

// DeviceStore defines the interface for phone-bridge liveness records.
type DeviceStore interface {
	// UpsertDeviceHeartbeat merges one heartbeat into the device record.
	UpsertDeviceHeartbeat(ctx context.Context, d models.Device) error

	// ListDevices returns every known device.
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// IngestAuditStore appends raw-batch audit records. Audit records are never
// mutated and never read by the pipeline.
type IngestAuditStore interface {
	AppendIngestEvent(ctx context.Context, ev models.IngestEvent) error
}

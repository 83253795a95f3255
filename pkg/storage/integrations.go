package storage

import (
	"context"
	"time"

	"github.com/openmomo/ledgerd/pkg/models"
)

// IntegrationStore defines the interface for pull-connector configuration.
type IntegrationStore interface {
	// ListIntegrations returns every configured integration.
	ListIntegrations(ctx context.Context) ([]models.Integration, error)

	// ListEnabledIntegrations returns only integrations eligible for
	// scheduled polling.
	ListEnabledIntegrations(ctx context.Context) ([]models.Integration, error)

	// GetIntegration retrieves one integration by id.
	// Returns ErrNotFound if it does not exist.
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)

	// PutIntegration creates or replaces an integration's configuration.
	PutIntegration(ctx context.Context, integ *models.Integration) error

	// UpdateIntegrationRun records the outcome of one connector run.
	// lastRunAt is nil on failure so the watermark never moves backward.
	UpdateIntegrationRun(ctx context.Context, id string, status models.IntegrationStatus, lastRunAt *time.Time) error
}

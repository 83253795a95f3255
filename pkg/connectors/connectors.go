package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/openmomo/ledgerd/pkg/models"
)

// Probe is the result of a connectivity check against an upstream source.
type Probe struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Connector pulls raw events from an external transaction source.
type Connector interface {
	// Key identifies the connector type, matching Integration.ProviderType.
	Key() string

	// FetchSince returns all raw events the source produced in [since, until).
	FetchSince(ctx context.Context, cfg map[string]string, since, until time.Time) ([]models.RawEvent, error)

	// TestConnection checks that the source is reachable with the given config.
	TestConnection(ctx context.Context, cfg map[string]string) Probe
}

// Registry maps provider types to their connectors.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates a registry holding the given connectors.
func NewRegistry(conns ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(conns))}
	for _, c := range conns {
		r.connectors[c.Key()] = c
	}
	return r
}

// Lookup returns the connector for a provider type.
func (r *Registry) Lookup(providerType string) (Connector, error) {
	c, ok := r.connectors[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
	return c, nil
}

// Keys returns the registered provider types.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		keys = append(keys, k)
	}
	return keys
}

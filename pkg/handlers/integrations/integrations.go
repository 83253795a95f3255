package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/handlers/respond"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// Manual runs are limited to 5 per minute per integration.
const (
	runLimitWindow = time.Minute
	runLimitBurst  = 5
)

// Runner executes one connector run on demand.
type Runner interface {
	RunIntegration(ctx context.Context, integ models.Integration) (int, error)
}

// IntegrationsHandler serves the pull-connector configuration API.
type IntegrationsHandler struct {
	Store    storage.IntegrationStore
	Registry *connectors.Registry
	Runner   Runner
	Logger   *slog.Logger

	validate *validator.Validate

	mu          sync.Mutex
	runLimiters map[string]*rate.Limiter
}

// NewIntegrationsHandler creates a new IntegrationsHandler.
func NewIntegrationsHandler(store storage.IntegrationStore, registry *connectors.Registry, runner Runner, logger *slog.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{
		Store:       store,
		Registry:    registry,
		Runner:      runner,
		Logger:      logger,
		validate:    validator.New(),
		runLimiters: make(map[string]*rate.Limiter),
	}
}

// List returns every configured integration.
func (h *IntegrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	integs, err := h.Store.ListIntegrations(r.Context())
	if err != nil {
		h.Logger.Error("failed to list integrations", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}
	respond.JSON(w, http.StatusOK, integs)
}

type upsertRequest struct {
	Id              string            `json:"id"`
	Name            string            `json:"name" validate:"required"`
	ProviderType    string            `json:"providerType" validate:"required"`
	Enabled         bool              `json:"enabled"`
	PollIntervalSec int               `json:"pollIntervalSec" validate:"gte=0"`
	Config          map[string]string `json:"config"`
}

// Upsert creates an integration, or replaces one when the body carries an id.
func (h *IntegrationsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "name and providerType required")
		return
	}
	if _, err := h.Registry.Lookup(req.ProviderType); err != nil {
		respond.Error(w, http.StatusBadRequest, "unknown providerType")
		return
	}

	now := time.Now().UTC()
	integ := models.Integration{
		Id:              req.Id,
		Name:            req.Name,
		ProviderType:    req.ProviderType,
		Enabled:         req.Enabled,
		PollIntervalSec: req.PollIntervalSec,
		Config:          req.Config,
		Status:          models.IntegrationIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if integ.Id == "" {
		integ.Id = uuid.New().String()
	}
	if integ.PollIntervalSec == 0 {
		integ.PollIntervalSec = 60
	}
	if integ.Config == nil {
		integ.Config = map[string]string{}
	}

	// Replacing an existing integration keeps its watermark and creation
	// time.
	if existing, err := h.Store.GetIntegration(r.Context(), integ.Id); err == nil {
		integ.LastRunAt = existing.LastRunAt
		integ.CreatedAt = existing.CreatedAt
	}

	if err := h.Store.PutIntegration(r.Context(), &integ); err != nil {
		h.Logger.Error("failed to save integration", "id", integ.Id, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to save integration")
		return
	}
	respond.JSON(w, http.StatusOK, integ)
}

// Test probes the integration's upstream without ingesting anything.
func (h *IntegrationsHandler) Test(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conn, err := h.Registry.Lookup(integ.ProviderType)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "unknown providerType")
		return
	}
	respond.JSON(w, http.StatusOK, conn.TestConnection(r.Context(), integ.Config))
}

// Run triggers one connector run immediately, outside the polling schedule.
func (h *IntegrationsHandler) Run(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !h.runLimiter(integ.Id).Allow() {
		respond.Error(w, http.StatusTooManyRequests, "too many runs, try again later")
		return
	}

	upserted, err := h.Runner.RunIntegration(r.Context(), *integ)
	if err != nil {
		h.Logger.Error("manual integration run failed", "id", integ.Id, "error", err)
		respond.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"ok": true, "upserted": upserted})
}

func (h *IntegrationsHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Integration, bool) {
	integ, err := h.Store.GetIntegration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Not found")
		} else {
			h.Logger.Error("failed to load integration", "error", err)
			respond.Error(w, http.StatusInternalServerError, "failed to load integration")
		}
		return nil, false
	}
	return integ, true
}

func (h *IntegrationsHandler) runLimiter(id string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.runLimiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(runLimitWindow/runLimitBurst), runLimitBurst)
		h.runLimiters[id] = l
	}
	return l
}

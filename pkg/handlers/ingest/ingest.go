package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/handlers/respond"
	"github.com/openmomo/ledgerd/pkg/hmacsig"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/pipeline"
	"github.com/openmomo/ledgerd/pkg/storage"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderDeviceId  = "X-Device-Id"

	EventDeviceHeartbeat = "device:heartbeat"
)

// Ingester accepts a batch of raw events.
type Ingester interface {
	IngestBatch(ctx context.Context, source string, events []models.RawEvent) (pipeline.Result, error)
}

// IngestHandler serves the device bridge endpoints: signed batch uploads and
// heartbeats.
type IngestHandler struct {
	Pipeline Ingester
	Devices  storage.DeviceStore
	Verifier *hmacsig.Verifier
	Bus      *bus.Broadcaster
	Logger   *slog.Logger
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(p Ingester, devices storage.DeviceStore, verifier *hmacsig.Verifier, b *bus.Broadcaster, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{Pipeline: p, Devices: devices, Verifier: verifier, Bus: b, Logger: logger}
}

type batchRequest struct {
	Events []models.RawEvent `json:"events"`
}

type batchResponse struct {
	OK bool `json:"ok"`
	// Upserted is the count the bridge protocol reads; accepted and
	// rejected break the batch down for operators.
	Upserted int `json:"upserted"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// BatchUpload handles a signed batch of raw events from a device bridge.
// The signature covers the raw body, so the body is read before decoding.
func (h *IngestHandler) BatchUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	deviceId := r.Header.Get(HeaderDeviceId)
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.Verifier.Authenticate(deviceId, ts, body, r.Header.Get(HeaderSignature)); err != nil {
		h.Logger.Warn("rejected batch upload", "device_id", deviceId, "reason", err)
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var batch batchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid batch body")
		return
	}

	result, err := h.Pipeline.IngestBatch(r.Context(), "device:"+deviceId, batch.Events)
	if err != nil {
		h.Logger.Error("batch ingest failed", "device_id", deviceId, "error", err)
		respond.Error(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	respond.JSON(w, http.StatusOK, batchResponse{OK: true, Upserted: result.Accepted, Accepted: result.Accepted, Rejected: result.Rejected})
}

type heartbeatRequest struct {
	DeviceId  string `json:"deviceId"`
	Provider  string `json:"provider"`
	Battery   *int   `json:"battery"`
	QueueSize int    `json:"queueSize"`
}

// Heartbeat records a device liveness ping.
func (h *IngestHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if hb.DeviceId == "" {
		respond.Error(w, http.StatusBadRequest, "deviceId required")
		return
	}

	device := models.Device{
		DeviceId:        hb.DeviceId,
		Provider:        hb.Provider,
		Battery:         hb.Battery,
		QueueSize:       hb.QueueSize,
		LastHeartbeatAt: time.Now().UTC(),
	}
	if err := h.Devices.UpsertDeviceHeartbeat(r.Context(), device); err != nil {
		h.Logger.Error("failed to record heartbeat", "device_id", hb.DeviceId, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	h.Bus.Publish(EventDeviceHeartbeat, map[string]string{"deviceId": hb.DeviceId})
	respond.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

package devices

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openmomo/ledgerd/pkg/handlers/respond"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// A device is online while its last heartbeat is at most this old.
const onlineWindow = 120 * time.Second

// DevicesHandler serves the device bridge fleet view.
type DevicesHandler struct {
	Store  storage.DeviceStore
	Logger *slog.Logger

	now func() time.Time
}

// NewDevicesHandler creates a new DevicesHandler.
func NewDevicesHandler(store storage.DeviceStore, logger *slog.Logger) *DevicesHandler {
	return &DevicesHandler{Store: store, Logger: logger, now: time.Now}
}

type listResponse struct {
	Items []models.Device `json:"items"`
}

// List returns every known device with its computed online flag.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Store.ListDevices(r.Context())
	if err != nil {
		h.Logger.Error("failed to list devices", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	now := h.now()
	for i := range devices {
		devices[i].Online = !devices[i].LastHeartbeatAt.IsZero() &&
			now.Sub(devices[i].LastHeartbeatAt) <= onlineWindow
	}
	if devices == nil {
		devices = []models.Device{}
	}
	respond.JSON(w, http.StatusOK, listResponse{Items: devices})
}

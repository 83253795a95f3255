package transactions

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openmomo/ledgerd/pkg/handlers/respond"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/storage"
)

const (
	defaultPageSize = 50
	exportCap       = 5000
)

// Serialized timestamps carry millisecond precision in UTC.
const isoMillis = "2006-01-02T15:04:05.000Z"

// TransactionsHandler serves read access to the ledger.
type TransactionsHandler struct {
	Store  storage.TransactionReader
	Logger *slog.Logger
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(store storage.TransactionReader, logger *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{Store: store, Logger: logger}
}

func parseFilter(r *http.Request) (storage.TransactionFilter, error) {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		Provider: q.Get("provider"),
		Type:     models.TransactionType(q.Get("type")),
		Status:   models.TransactionStatus(q.Get("status")),
		Limit:    defaultPageSize,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = int32(n)
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To, "cursor": &filter.Cursor} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid " + name)
		}
		t = t.UTC()
		*dst = &t
	}
	return filter, nil
}

type listResponse struct {
	Items      []models.Transaction `json:"items"`
	NextCursor *string              `json:"nextCursor"`
}

// List returns a filtered, cursor-paged view of the ledger, newest first.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	items, nextCursor, err := h.Store.QueryTransactions(r.Context(), filter)
	if err != nil {
		h.Logger.Error("failed to query transactions", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to query transactions")
		return
	}

	resp := listResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []models.Transaction{}
	}
	if nextCursor != nil {
		c := nextCursor.UTC().Format(isoMillis)
		resp.NextCursor = &c
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Get returns one transaction by its idempotency key.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Store.GetTransaction(r.Context(), chi.URLParam(r, "idKey"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Not found")
		} else {
			h.Logger.Error("failed to load transaction", "error", err)
			respond.Error(w, http.StatusInternalServerError, "failed to load transaction")
		}
		return
	}
	respond.JSON(w, http.StatusOK, tx)
}

var exportHeaders = []string{"idKey", "provider", "type", "amount", "currency", "fromMsisdn", "toMsisdn", "externalRef", "status", "occurredAt"}

// ExportCSV streams the filtered ledger as a CSV attachment, capped at 5000
// rows.
func (h *TransactionsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Cursor = nil
	filter.Limit = exportCap

	items, _, err := h.Store.QueryTransactions(r.Context(), filter)
	if err != nil {
		h.Logger.Error("failed to export transactions", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to export transactions")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeaders)
	for _, tx := range items {
		_ = cw.Write([]string{
			tx.IdKey,
			tx.Provider,
			string(tx.Type),
			strconv.FormatInt(tx.Amount, 10),
			tx.Currency,
			tx.FromMsisdn,
			tx.ToMsisdn,
			tx.ExternalRef,
			string(tx.Status),
			tx.OccurredAt.UTC().Format(isoMillis),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.Logger.Error("failed to write CSV response", "error", err)
	}
}

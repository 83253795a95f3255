package reports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmomo/ledgerd/pkg/handlers/respond"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/rollup"
)

// parseType validates the optional type filter. An unrecognized value must be
// rejected here: the two summary paths disagree on what a nonsense type means.
func parseType(s string) (models.TransactionType, error) {
	switch t := models.TransactionType(s); t {
	case "", models.Deposit, models.Withdrawal:
		return t, nil
	default:
		return "", fmt.Errorf("unknown type %q", s)
	}
}

// Summarizer produces aggregate rows for a reporting window.
type Summarizer interface {
	Summary(ctx context.Context, q rollup.SummaryQuery) ([]models.BucketSummary, error)
}

// ReportsHandler serves the aggregate reporting API.
type ReportsHandler struct {
	Agg    Summarizer
	Logger *slog.Logger
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(agg Summarizer, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{Agg: agg, Logger: logger}
}

// Summary returns per-bucket totals for the requested window.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	granularity, err := rollup.ParseGranularity(q.Get("granularity"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" || rawTo == "" {
		respond.Error(w, http.StatusBadRequest, "from and to required")
		return
	}
	from, err := time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := time.Parse(time.RFC3339, rawTo)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid to")
		return
	}

	txType, err := parseType(q.Get("type"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.Agg.Summary(r.Context(), rollup.SummaryQuery{
		Granularity: granularity,
		From:        from.UTC(),
		To:          to.UTC(),
		Provider:    q.Get("provider"),
		Type:        txType,
	})
	if err != nil {
		h.Logger.Error("failed to build summary", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	if rows == nil {
		rows = []models.BucketSummary{}
	}
	respond.JSON(w, http.StatusOK, rows)
}

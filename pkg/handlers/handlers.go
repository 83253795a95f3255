// Package handlers wires the HTTP API: device bridge ingestion, ledger reads,
// integration management, reporting, and the live event stream.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/handlers/devices"
	"github.com/openmomo/ledgerd/pkg/handlers/ingest"
	"github.com/openmomo/ledgerd/pkg/handlers/integrations"
	"github.com/openmomo/ledgerd/pkg/handlers/live"
	"github.com/openmomo/ledgerd/pkg/handlers/reports"
	"github.com/openmomo/ledgerd/pkg/handlers/transactions"
	"github.com/openmomo/ledgerd/pkg/hmacsig"
	"github.com/openmomo/ledgerd/pkg/middleware"
	"github.com/openmomo/ledgerd/pkg/storage"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Store    storage.Storage
	Pipeline ingest.Ingester
	Agg      reports.Summarizer
	Runner   integrations.Runner
	Registry *connectors.Registry
	Bus      *bus.Broadcaster
	Verifier *hmacsig.Verifier
	Logger   *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(d Deps) chi.Router {
	ingestH := ingest.NewIngestHandler(d.Pipeline, d.Store, d.Verifier, d.Bus, d.Logger)
	integrationsH := integrations.NewIntegrationsHandler(d.Store, d.Registry, d.Runner, d.Logger)
	transactionsH := transactions.NewTransactionsHandler(d.Store, d.Logger)
	devicesH := devices.NewDevicesHandler(d.Store, d.Logger)
	reportsH := reports.NewReportsHandler(d.Agg, d.Logger)
	liveH := live.NewLiveHandler(d.Bus, d.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewStructuredLogger(d.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/transactions/batch", ingestH.BatchUpload)
		r.Post("/heartbeat", ingestH.Heartbeat)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationsH.List)
			r.Post("/", integrationsH.Upsert)
			r.Post("/{id}/test", integrationsH.Test)
			r.Post("/{id}/run", integrationsH.Run)
		})

		r.Get("/transactions", transactionsH.List)
		r.Get("/transactions/{idKey}", transactionsH.Get)
		r.Get("/devices", devicesH.List)
		r.Get("/reports/summary", reportsH.Summary)
		r.Get("/reports/export.csv", transactionsH.ExportCSV)
	})

	r.Get("/live/events", liveH.Events)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	return r
}

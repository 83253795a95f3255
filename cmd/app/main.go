package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-resty/resty/v2"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/config"
	"github.com/openmomo/ledgerd/pkg/connectors"
	"github.com/openmomo/ledgerd/pkg/handlers"
	"github.com/openmomo/ledgerd/pkg/hmacsig"
	"github.com/openmomo/ledgerd/pkg/models"
	"github.com/openmomo/ledgerd/pkg/pipeline"
	"github.com/openmomo/ledgerd/pkg/rollup"
	"github.com/openmomo/ledgerd/pkg/scheduler"
	"github.com/openmomo/ledgerd/pkg/storage"
	dynamostore "github.com/openmomo/ledgerd/pkg/storage/dynamodb"
	"github.com/openmomo/ledgerd/pkg/storage/memory"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns := []connectors.Connector{
		connectors.NewGenericRest(resty.New().SetTimeout(30 * time.Second)),
	}

	var store storage.Storage
	if cfg.DemoMode {
		logger.Info("demo mode enabled, using in-memory storage")
		mem := memory.New()
		seedDemo(ctx, mem, logger)
		store = mem
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("unable to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		store = dynamostore.New(
			awsdynamodb.NewFromConfig(awsCfg),
			cfg.TransactionsTable,
			cfg.RollupsTable,
			cfg.IntegrationsTable,
			cfg.DevicesTable,
			cfg.IngestEventsTable,
		)
		if cfg.SQSQueueURL != "" {
			conns = append(conns, connectors.NewSQSBridge(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL))
		}
	}

	b := bus.New(64, logger)
	agg := rollup.NewAggregator(store, store, logger)
	pipe := pipeline.New(store, agg, b, logger)
	registry := connectors.NewRegistry(conns...)

	sched := scheduler.New(store, registry, pipe, agg, b, logger)
	sched.Start(ctx)

	router := handlers.NewRouter(handlers.Deps{
		Store:    store,
		Pipeline: pipe,
		Agg:      agg,
		Runner:   sched,
		Registry: registry,
		Bus:      b,
		Verifier: hmacsig.NewVerifier(cfg.DeviceSecret, cfg.DeviceSecrets, cfg.HMACSkew),
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	sched.Stop()
	b.Shutdown()
}

// seedDemo configures one mock integration so the service produces data out
// of the box.
func seedDemo(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	now := time.Now().UTC()
	integ := &models.Integration{
		Id:              "demo-generic",
		Name:            "Demo REST source",
		ProviderType:    connectors.GenericRestKey,
		Enabled:         true,
		PollIntervalSec: 60,
		Config:          map[string]string{"base_url": "mock:demo"},
		Status:          models.IntegrationIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.PutIntegration(ctx, integ); err != nil {
		logger.Error("failed to seed demo integration", "error", err)
	}
}

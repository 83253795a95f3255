// Package config loads service configuration from the environment, with a
// .env file honored during local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	HTTPPort string

	// DemoMode runs against in-memory storage with the mock connector
	// seeded, so the service works with no AWS account at all.
	DemoMode bool

	TransactionsTable string
	RollupsTable      string
	IntegrationsTable string
	DevicesTable      string
	IngestEventsTable string

	// Optional queue for device bridges that push batches through SQS
	// instead of HTTP.
	SQSQueueURL string

	HMACSkew time.Duration

	// DeviceSecret signs bridge requests from devices without their own
	// entry in DeviceSecrets.
	DeviceSecret  string
	DeviceSecrets map[string]string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseDeviceSecrets parses "deviceId:secret,deviceId:secret" pairs.
func ParseDeviceSecrets(raw string) (map[string]string, error) {
	secrets := make(map[string]string)
	if raw == "" {
		return secrets, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, ":")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed device secret pair: %q", pair)
		}
		secrets[id] = secret
	}
	return secrets, nil
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		TransactionsTable: os.Getenv("DYNAMODB_TRANSACTIONS_TABLE_NAME"),
		RollupsTable:      os.Getenv("DYNAMODB_ROLLUPS_TABLE_NAME"),
		IntegrationsTable: os.Getenv("DYNAMODB_INTEGRATIONS_TABLE_NAME"),
		DevicesTable:      os.Getenv("DYNAMODB_DEVICES_TABLE_NAME"),
		IngestEventsTable: os.Getenv("DYNAMODB_INGEST_EVENTS_TABLE_NAME"),
		SQSQueueURL:       os.Getenv("SQS_QUEUE_URL"),
		DeviceSecret:      getenv("DEVICE_SECRET", "momo-monitor-secret"),
	}

	// Demo mode is on unless explicitly disabled.
	demo := getenv("DEMO", "true")
	cfg.DemoMode = strings.EqualFold(demo, "true")

	skewSeconds := 120
	if raw := os.Getenv("HMAC_SKEW_SECONDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid HMAC_SKEW_SECONDS: %q", raw)
		}
		skewSeconds = n
	}
	cfg.HMACSkew = time.Duration(skewSeconds) * time.Second

	secrets, err := ParseDeviceSecrets(os.Getenv("DEVICE_SECRETS"))
	if err != nil {
		return nil, err
	}
	cfg.DeviceSecrets = secrets

	if !cfg.DemoMode {
		missing := []string{}
		for name, v := range map[string]string{
			"DYNAMODB_TRANSACTIONS_TABLE_NAME":  cfg.TransactionsTable,
			"DYNAMODB_ROLLUPS_TABLE_NAME":       cfg.RollupsTable,
			"DYNAMODB_INTEGRATIONS_TABLE_NAME":  cfg.IntegrationsTable,
			"DYNAMODB_DEVICES_TABLE_NAME":       cfg.DevicesTable,
			"DYNAMODB_INGEST_EVENTS_TABLE_NAME": cfg.IngestEventsTable,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
		}
	}

	return cfg, nil
}

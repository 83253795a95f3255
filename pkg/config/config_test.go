package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceSecrets(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		secrets, err := ParseDeviceSecrets("")
		require.NoError(t, err)
		assert.Empty(t, secrets)
	})

	t.Run("Pairs", func(t *testing.T) {
		secrets, err := ParseDeviceSecrets("dev-1:s1, dev-2:s2")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"dev-1": "s1", "dev-2": "s2"}, secrets)
	})

	t.Run("Malformed Pair", func(t *testing.T) {
		_, err := ParseDeviceSecrets("dev-1")
		assert.ErrorContains(t, err, "malformed device secret pair")

		_, err = ParseDeviceSecrets("dev-1:")
		assert.ErrorContains(t, err, "malformed device secret pair")
	})
}

func TestLoad(t *testing.T) {
	t.Run("Demo Defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.DemoMode)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, 120*time.Second, cfg.HMACSkew)
		assert.NotEmpty(t, cfg.DeviceSecret)
	})

	t.Run("Production Requires Tables", func(t *testing.T) {
		t.Setenv("DEMO", "false")
		_, err := Load()
		assert.ErrorContains(t, err, "missing required environment variables")
	})

	t.Run("Production Fully Configured", func(t *testing.T) {
		t.Setenv("DEMO", "false")
		t.Setenv("DYNAMODB_TRANSACTIONS_TABLE_NAME", "tx")
		t.Setenv("DYNAMODB_ROLLUPS_TABLE_NAME", "rollups")
		t.Setenv("DYNAMODB_INTEGRATIONS_TABLE_NAME", "integrations")
		t.Setenv("DYNAMODB_DEVICES_TABLE_NAME", "devices")
		t.Setenv("DYNAMODB_INGEST_EVENTS_TABLE_NAME", "ingest")
		t.Setenv("HMAC_SKEW_SECONDS", "60")
		t.Setenv("DEVICE_SECRETS", "dev-1:abc")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.DemoMode)
		assert.Equal(t, "tx", cfg.TransactionsTable)
		assert.Equal(t, 60*time.Second, cfg.HMACSkew)
		assert.Equal(t, "abc", cfg.DeviceSecrets["dev-1"])
	})

	t.Run("Invalid Skew", func(t *testing.T) {
		t.Setenv("HMAC_SKEW_SECONDS", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "invalid HMAC_SKEW_SECONDS")
	})
}

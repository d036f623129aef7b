package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daffadevhosting/paypal-workers/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PAYPAL_HTTP_ADDR", "PAYPAL_DATABASE_URL", "PAYPAL_RABBIT_URL", "PAYPAL_STATUS_EXCHANGE",
	"PAYPAL_STATUS_QUEUE", "PAYPAL_OUTBOX_INTERVAL", "PAYPAL_OUTBOX_BATCH", "PAYPAL_SHUTDOWN_TIMEOUT",
	"PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_SECRET", "PAYPAL_BASE_URL", "PAYPAL_WEBHOOK_ID",
	"PAYPAL_REQUEST_TIMEOUT", "PAYPAL_BRAND_NAME", "WEBHOOK_DISPATCH_MODE", "LOG_LEVEL",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "PAYPAL_CLIENT_ID=cid\nPAYPAL_CLIENT_SECRET=secret\nPAYPAL_WEBHOOK_ID=WH-1\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.HTTPAddr)
	assert.Equal(t, "https://api-m.sandbox.paypal.com", cfg.PayPalBaseURL)
	assert.Equal(t, 2*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 32, cfg.OutboxBatch)
	assert.Equal(t, 15*time.Second, cfg.PayPalTimeout)
	assert.Equal(t, webhook.DispatchStrict, cfg.DispatchMode)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.StatusQueue)
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "PAYPAL_CLIENT_ID=from-file\nPAYPAL_CLIENT_SECRET=secret\nPAYPAL_WEBHOOK_ID=WH-1\nPAYPAL_OUTBOX_BATCH=8\n")
	t.Setenv("PAYPAL_CLIENT_ID", "from-env")
	t.Setenv("PAYPAL_BASE_URL", "https://api-m.paypal.com/")
	t.Setenv("PAYPAL_OUTBOX_INTERVAL", "500ms")
	t.Setenv("WEBHOOK_DISPATCH_MODE", "best_effort")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.PayPalClientID)
	assert.Equal(t, "https://api-m.paypal.com", cfg.PayPalBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxInterval)
	assert.Equal(t, 8, cfg.OutboxBatch)
	assert.Equal(t, webhook.DispatchBestEffort, cfg.DispatchMode)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFileInvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "PAYPAL_CLIENT_ID=cid\nPAYPAL_CLIENT_SECRET=secret\nPAYPAL_WEBHOOK_ID=WH-1\n")
	t.Setenv("PAYPAL_SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("PAYPAL_OUTBOX_BATCH", "many")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 32, cfg.OutboxBatch)
}

func TestLoadFileMissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAYPAL_CLIENT_ID", "cid")
	t.Setenv("PAYPAL_CLIENT_SECRET", "secret")
	t.Setenv("PAYPAL_WEBHOOK_ID", "WH-1")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.PayPalClientID)
}

func TestLoadFileRejects(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing credentials",
			env:     map[string]string{"PAYPAL_WEBHOOK_ID": "WH-1"},
			wantErr: "PAYPAL_CLIENT_ID is required",
		},
		{
			name:    "missing webhook id",
			env:     map[string]string{"PAYPAL_CLIENT_ID": "cid", "PAYPAL_CLIENT_SECRET": "secret"},
			wantErr: "PAYPAL_WEBHOOK_ID is required",
		},
		{
			name: "unknown dispatch mode",
			env: map[string]string{
				"PAYPAL_CLIENT_ID": "cid", "PAYPAL_CLIENT_SECRET": "secret", "PAYPAL_WEBHOOK_ID": "WH-1",
				"WEBHOOK_DISPATCH_MODE": "sometimes",
			},
			wantErr: "WEBHOOK_DISPATCH_MODE",
		},
		{
			name: "unknown log level",
			env: map[string]string{
				"PAYPAL_CLIENT_ID": "cid", "PAYPAL_CLIENT_SECRET": "secret", "PAYPAL_WEBHOOK_ID": "WH-1",
				"LOG_LEVEL": "chatty",
			},
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

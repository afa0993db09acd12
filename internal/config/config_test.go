package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REALTIME_MODE", "")
	t.Setenv("NOTIFICATION_BROADCAST_BATCH_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, RealtimeModeLocal, cfg.Realtime.Mode)
	assert.Equal(t, 1000, cfg.Notification.BroadcastBatchSize)
	assert.Equal(t, 2000, cfg.Messaging.MaxContentLength)
	assert.Equal(t, 30*time.Second, cfg.Messaging.UnreadCacheTTL)
	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, 300, cfg.Server.RequestLimit)
	assert.Equal(t, time.Minute, cfg.Server.RequestWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REALTIME_MODE", "REDIS")
	t.Setenv("MESSAGE_SEND_WINDOW", "10s")
	t.Setenv("JOBS_ENABLED", "false")
	t.Setenv("JOBS_BROADCAST_TIMEOUT", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, RealtimeModeRedis, cfg.Realtime.Mode)
	assert.Equal(t, 10*time.Second, cfg.Messaging.SendWindow)
	assert.False(t, cfg.Jobs.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.BroadcastTimeout)
}

func TestLoadRejectsOversizedBatch(t *testing.T) {
	t.Setenv("NOTIFICATION_BROADCAST_BATCH_SIZE", "5000")

	_, err := Load()
	assert.ErrorContains(t, err, "batch size")
}

func TestLoadRejectsUnknownRealtimeMode(t *testing.T) {
	t.Setenv("REALTIME_MODE", "carrier-pigeon")

	_, err := Load()
	assert.ErrorContains(t, err, "realtime mode")
}

package config

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORAGE_MODE", "REMOTE_URI", "MONGODB_URI", "REMOTE_DRIVER", "REMOTE_OP_TIMEOUT", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ModeHybrid, cfg.Storage.Mode)
	assert.Equal(t, DriverMongo, cfg.Remote.Driver)
	assert.Equal(t, 5*time.Second, cfg.Remote.OpTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Remote.SyncOnReconnect)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeLocal, cfg.EffectiveMode(), "hybrid without a URI runs local")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_MODE", "Remote")
	t.Setenv("REMOTE_URI", "")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("REMOTE_OP_TIMEOUT", "2")
	t.Setenv("REMOTE_CONNECT_TIMEOUT", "750ms")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("SYNC_ON_RECONNECT", "no")

	cfg := Load()
	assert.Equal(t, ModeRemote, cfg.Storage.Mode)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Remote.URI, "MONGODB_URI is the fallback")
	assert.Equal(t, 2*time.Second, cfg.Remote.OpTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Remote.ConnectTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Remote.SyncOnReconnect)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeRemote, cfg.EffectiveMode())
}

func TestValidate(t *testing.T) {
	for _, k := range []string{"REMOTE_URI", "MONGODB_URI", "DATA_FILE", "LOG_FORMAT", "MAX_BODY_BYTES",
		"REMOTE_FAILURE_THRESHOLD", "REMOTE_CONNECT_TIMEOUT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	cfg.Storage.Mode = ModeRemote
	assert.ErrorContains(t, cfg.Validate(), "requires REMOTE_URI")

	cfg = Load()
	cfg.Storage.Mode = "sometimes"
	cfg.Remote.Driver = "redis"
	cfg.Remote.OpTimeout = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown storage mode")
	assert.ErrorContains(t, err, "unknown REMOTE_DRIVER")
	assert.ErrorContains(t, err, "REMOTE_OP_TIMEOUT must be positive")

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3, "every invalid setting is reported")
}

func TestParseStorageMode(t *testing.T) {
	m, err := ParseStorageMode(" LOCAL ")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)
	_, err = ParseStorageMode("both")
	assert.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.DatabaseDSN, "file:vaultsync.db")
	assert.Equal(t, c.AppName, "vaultsync")
	assert.Equal(t, c.DeviceName, "")
	assert.Equal(t, c.TickInterval, 60*time.Second)
	assert.Equal(t, c.SyncConcurrency, 1)
	assert.Equal(t, c.ConflictRetentionDays, 30)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.DatabaseDSN, "file:vaultsync.db")
	assert.Equal(t, c.AppName, "vaultsync")
	assert.Equal(t, c.TickInterval, 60*time.Second)
	assert.Equal(t, c.SyncConcurrency, 1)
	assert.Equal(t, c.ConflictRetentionDays, 30)
}

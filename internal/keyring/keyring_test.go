package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceName(t *testing.T) {
	assert.Equal(t, "vaultsync_master_password", ServiceName("vaultsync", "master_password"))
	assert.Equal(t, "vaultsync_device_key", ServiceName("vaultsync", "device_key"))
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.Store("svc", "acc", "s3cret"))

	got, found, err := m.Get("svc", "acc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "s3cret", got)
}

func TestMemoryStore_MissingEntryIsNotAnError(t *testing.T) {
	m := NewMemoryStore()

	got, found, err := m.Get("svc", "nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got)
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.Store("svc", "acc", "s3cret"))
	require.NoError(t, m.Delete("svc", "acc"))
	require.NoError(t, m.Delete("svc", "acc"))

	_, found, err := m.Get("svc", "acc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_ServiceNamespacesDoNotCollide(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.Store(ServiceName("app", "master_password"), "acc", "one"))
	require.NoError(t, m.Store(ServiceName("app", "device_key"), "acc", "two"))

	got, _, err := m.Get(ServiceName("app", "master_password"), "acc")
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	got, _, err = m.Get(ServiceName("app", "device_key"), "acc")
	require.NoError(t, err)
	assert.Equal(t, "two", got)
}

func TestMemoryStore_Availability(t *testing.T) {
	m := NewMemoryStore()
	assert.True(t, m.IsAvailable())

	m.SetAvailable(false)
	assert.False(t, m.IsAvailable())
}

package keymanager

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/keyring"
	"github.com/dmitrijs2005/vaultsync/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return db
}

func newManager(t *testing.T, db *sql.DB) (*Manager, *keyring.MemoryStore) {
	t.Helper()
	secrets := keyring.NewMemoryStore()
	return New(db, secrets, "vaultsync", "device-1"), secrets
}

func TestSetup_ThenVerify(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	ok, err := m.IsSetUp(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Setup(ctx, []byte("correct-horse")))

	ok, err = m.IsSetUp(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	good, err := m.Verify(ctx, []byte("correct-horse"))
	require.NoError(t, err)
	assert.True(t, good)

	bad, err := m.Verify(ctx, []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, bad)
}

func TestSetup_FailsWhenAlreadySetUp(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	err := m.Setup(ctx, []byte("other"))
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)
}

func TestVerify_DoesNotAlterUnlockedState(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	require.NoError(t, m.Unlock(ctx, []byte("pw")))

	_, err := m.Verify(ctx, []byte("wrong"))
	require.NoError(t, err)
	assert.True(t, m.IsUnlocked())
}

func TestUnlock_WrongPassword(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	err := m.Unlock(ctx, []byte("nope"))
	require.ErrorIs(t, err, common.ErrInvalidPassword)
	assert.False(t, m.IsUnlocked())
}

func TestEncryptDecryptString_CurrentDevice(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	require.NoError(t, m.Unlock(ctx, []byte("pw")))

	ct, err := m.EncryptString(`{"host":"db1"}`, "")
	require.NoError(t, err)
	assert.NotContains(t, ct, "db1")

	pt, err := m.DecryptString(ct, "")
	require.NoError(t, err)
	assert.Equal(t, `{"host":"db1"}`, pt)
}

func TestLock_DiscardsSessionKey(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	require.NoError(t, m.Unlock(ctx, []byte("pw")))

	ct, err := m.EncryptString("secret", "")
	require.NoError(t, err)

	m.Lock()
	assert.False(t, m.IsUnlocked())

	_, err = m.EncryptString("secret", "")
	require.ErrorIs(t, err, common.ErrMasterPasswordRequired)
	_, err = m.DecryptString(ct, "")
	require.ErrorIs(t, err, common.ErrMasterPasswordRequired)

	// Unlocking again restores access to previously encrypted data.
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
	pt, err := m.DecryptString(ct, "")
	require.NoError(t, err)
	assert.Equal(t, "secret", pt)
}

func TestChangePassword_SurvivesRestart(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("old-pw")))
	require.NoError(t, m.Unlock(ctx, []byte("old-pw")))
	ct, err := m.EncryptString("payload", "")
	require.NoError(t, err)

	require.NoError(t, m.ChangePassword(ctx, []byte("old-pw"), []byte("new-pw")))

	// Simulated restart: a fresh manager over the same database.
	m2, _ := newManager(t, db)
	require.ErrorIs(t, m2.Unlock(ctx, []byte("old-pw")), common.ErrInvalidPassword)
	require.NoError(t, m2.Unlock(ctx, []byte("new-pw")))

	// Data encrypted before the rotation is still readable: the DEK did not change.
	pt, err := m2.DecryptString(ct, "")
	require.NoError(t, err)
	assert.Equal(t, "payload", pt)
}

func TestChangePassword_RequiresOldPassword(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	err := m.ChangePassword(ctx, []byte("wrong"), []byte("new"))
	require.ErrorIs(t, err, common.ErrInvalidPassword)

	// The old password still works.
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
}

func TestTryAutoUnlock(t *testing.T) {
	db := setupDB(t)
	m, secrets := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
	require.NoError(t, m.EnableAutoUnlock(ctx))
	m.Lock()

	cfg := models.MasterPasswordConfig{AutoUnlock: true, UseKeychain: true}

	ok, err := m.TryAutoUnlock(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.IsUnlocked())
	assert.True(t, m.UnlockedViaAuto())

	// A manual unlock is not flagged as auto.
	m.Lock()
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
	assert.False(t, m.UnlockedViaAuto())

	// Disabled policy silently no-ops.
	m.Lock()
	ok, err = m.TryAutoUnlock(ctx, models.MasterPasswordConfig{AutoUnlock: false, UseKeychain: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, m.IsUnlocked())

	// Unavailable credential store degrades to "require password".
	secrets.SetAvailable(false)
	ok, err = m.TryAutoUnlock(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryAutoUnlock_NoEscrowedEntry(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))

	ok, err := m.TryAutoUnlock(ctx, models.MasterPasswordConfig{AutoUnlock: true, UseKeychain: true})
	require.NoError(t, err)
	assert.False(t, ok)

	// The manual path still works after the failed auto attempt.
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
}

func TestDeviceScopedEncryption(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Setup(ctx, []byte("pw")))
	require.NoError(t, m.Unlock(ctx, []byte("pw")))

	_, err := m.EncryptString("x", "laptop-2")
	require.ErrorIs(t, err, common.ErrUnknownDeviceKey)

	otherKey := common.GenerateRandByteArray(cryptox.KeySize)
	require.NoError(t, m.ImportDeviceKey(ctx, "laptop-2", otherKey))

	ct, err := m.EncryptString("cross-device", "laptop-2")
	require.NoError(t, err)
	pt, err := m.DecryptString(ct, "laptop-2")
	require.NoError(t, err)
	assert.Equal(t, "cross-device", pt)

	// Imported keys survive lock/unlock via the wrapped registry.
	m.Lock()
	require.NoError(t, m.Unlock(ctx, []byte("pw")))
	pt, err = m.DecryptString(ct, "laptop-2")
	require.NoError(t, err)
	assert.Equal(t, "cross-device", pt)
}

func TestSaveLoadConfig(t *testing.T) {
	db := setupDB(t)
	m, _ := newManager(t, db)
	ctx := context.Background()

	cfg, err := m.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMasterPasswordConfig(), cfg)

	cfg.AutoUnlock = true
	cfg.UseKeychain = true
	require.NoError(t, m.SaveConfig(ctx, cfg))

	got, err := m.LoadConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.AutoUnlock)
	assert.True(t, got.UseKeychain)
}

// Package keymanager derives and guards the in-memory root key for the
// unlocked session and offers string/blob encryption to every other
// component, scoped to the current device or an imported device identity.
//
// Envelope scheme: a random 32-byte data-encryption key (DEK) is wrapped by
// an argon2id password-derived key. A sha256 verifier of the DEK detects a
// wrong password without trial-decrypting user data. Changing the password
// re-wraps the DEK; user data is never re-encrypted.
package keymanager

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/keyring"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/store/repositories/metadata"
)

// Metadata keys for persisted key material. Only wrapped/derived values are
// stored; the DEK itself exists in plaintext solely in locked memory here
// (and, when the user opts in, in the OS credential store for auto-unlock).
const (
	metaSalt       = "master_salt"
	metaWrappedDEK = "master_wrapped_dek"
	metaVerifier   = "master_verifier"
	metaMPConfig   = "master_password_config"

	deviceKeyPrefix = "device_key_"

	keyringPurpose = "master_key"
)

// Manager holds the unlocked root key behind a single exclusive lock. All
// unlock/lock/change-password transitions and key reads go through it, so a
// reader always sees a fully valid old-or-new key, never a half-rotated one.
type Manager struct {
	mu       sync.Mutex
	db       *sql.DB
	meta     metadata.Repository
	secrets  keyring.SecretStore
	app      string
	deviceID string

	dek        []byte // nil when locked
	viaAuto    bool
	deviceKeys map[string][]byte
}

// New builds a locked manager persisting through the store's metadata table.
func New(db *sql.DB, secrets keyring.SecretStore, app, deviceID string) *Manager {
	return &Manager{
		db:       db,
		meta:     metadata.NewSQLiteRepository(db),
		secrets:  secrets,
		app:      app,
		deviceID: deviceID,
	}
}

// IsSetUp reports whether a master password has been configured.
func (m *Manager) IsSetUp(ctx context.Context) (bool, error) {
	wrapped, err := m.meta.Get(ctx, metaWrappedDEK)
	if err != nil {
		return false, err
	}
	return wrapped != nil, nil
}

// Setup performs first-time initialization: it derives a wrapping key from
// the password, generates the DEK and persists salt, wrapped DEK and
// verifier. Fails with common.ErrAlreadyInitialized when already set up.
// The session stays locked; call Unlock afterwards.
func (m *Manager) Setup(ctx context.Context, password []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.IsSetUp(ctx)
	if err != nil {
		return err
	}
	if ok {
		return common.ErrAlreadyInitialized
	}

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	kek := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(kek)

	dek := common.GenerateRandByteArray(cryptox.KeySize)
	defer common.WipeByteArray(dek)

	wrapped, err := cryptox.Encrypt(kek, dek)
	if err != nil {
		return fmt.Errorf("failed to wrap data key: %w", err)
	}

	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metaSalt, salt); err != nil {
			return err
		}
		if err := repo.Set(ctx, metaWrappedDEK, wrapped); err != nil {
			return err
		}
		return repo.Set(ctx, metaVerifier, cryptox.MakeVerifier(dek))
	})
}

// unwrap re-derives the DEK from a candidate password without touching
// session state. Returns common.ErrInvalidPassword when the password does
// not reproduce the stored verifier.
func (m *Manager) unwrap(ctx context.Context, password []byte) ([]byte, error) {
	salt, err := m.meta.Get(ctx, metaSalt)
	if err != nil {
		return nil, err
	}
	wrapped, err := m.meta.Get(ctx, metaWrappedDEK)
	if err != nil {
		return nil, err
	}
	verifier, err := m.meta.Get(ctx, metaVerifier)
	if err != nil {
		return nil, err
	}
	if salt == nil || wrapped == nil || verifier == nil {
		return nil, common.ErrNotInitialized
	}

	kek := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(kek)

	dek, err := cryptox.Decrypt(kek, wrapped)
	if err != nil {
		return nil, common.ErrInvalidPassword
	}
	if !bytes.Equal(cryptox.MakeVerifier(dek), verifier) {
		common.WipeByteArray(dek)
		return nil, common.ErrInvalidPassword
	}
	return dek, nil
}

// Verify checks a password against the stored material without mutating
// session state. It never logs the password or any derived secret.
func (m *Manager) Verify(ctx context.Context, password []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dek, err := m.unwrap(ctx, password)
	if errors.Is(err, common.ErrInvalidPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	common.WipeByteArray(dek)
	return true, nil
}

// Unlock derives the root key from the password and holds it in memory.
func (m *Manager) Unlock(ctx context.Context, password []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlockLocked(ctx, password, false)
}

func (m *Manager) unlockLocked(ctx context.Context, password []byte, viaAuto bool) error {
	dek, err := m.unwrap(ctx, password)
	if err != nil {
		return err
	}
	return m.adoptDEK(ctx, dek, viaAuto)
}

func (m *Manager) adoptDEK(ctx context.Context, dek []byte, viaAuto bool) error {
	deviceKeys, err := m.loadDeviceKeys(ctx, dek)
	if err != nil {
		common.WipeByteArray(dek)
		return err
	}
	common.WipeByteArray(m.dek)
	m.dek = dek
	m.viaAuto = viaAuto
	m.deviceKeys = deviceKeys
	return nil
}

// TryAutoUnlock attempts to unlock from the OS credential store. It is a
// no-op (false, nil) unless cfg enables both auto-unlock and keychain use,
// or when the credential store is unavailable or holds no entry. A failure
// here never prevents a subsequent manual Unlock.
func (m *Manager) TryAutoUnlock(ctx context.Context, cfg models.MasterPasswordConfig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.AutoUnlock || !cfg.UseKeychain {
		return false, nil
	}
	if !m.secrets.IsAvailable() {
		return false, nil
	}

	encoded, found, err := m.secrets.Get(keyring.ServiceName(m.app, keyringPurpose), m.deviceID)
	if err != nil || !found {
		return false, err
	}

	dek, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: escrowed key is not base64", common.ErrInvalidFormat)
	}

	verifier, err := m.meta.Get(ctx, metaVerifier)
	if err != nil {
		return false, err
	}
	if verifier == nil || !bytes.Equal(cryptox.MakeVerifier(dek), verifier) {
		// Stale escrow (password changed scheme or foreign entry); ignore it.
		common.WipeByteArray(dek)
		return false, nil
	}

	if err := m.adoptDEK(ctx, dek, true); err != nil {
		return false, err
	}
	return true, nil
}

// EnableAutoUnlock escrows the current session key in the OS credential
// store. Requires an unlocked session and an available store.
func (m *Manager) EnableAutoUnlock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dek == nil {
		return common.ErrMasterPasswordRequired
	}
	if !m.secrets.IsAvailable() {
		return fmt.Errorf("%w: credential store unavailable", common.ErrConfig)
	}
	return m.secrets.Store(keyring.ServiceName(m.app, keyringPurpose), m.deviceID,
		base64.StdEncoding.EncodeToString(m.dek))
}

// DisableAutoUnlock removes any escrowed key. Idempotent.
func (m *Manager) DisableAutoUnlock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets.Delete(keyring.ServiceName(m.app, keyringPurpose), m.deviceID)
}

// Lock discards the in-memory root key. Subsequent encrypt/decrypt calls
// fail with common.ErrMasterPasswordRequired until unlocked again.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	common.WipeByteArray(m.dek)
	m.dek = nil
	m.viaAuto = false
	for _, k := range m.deviceKeys {
		common.WipeByteArray(k)
	}
	m.deviceKeys = nil
}

// IsUnlocked reports whether a session key is held.
func (m *Manager) IsUnlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dek != nil
}

// UnlockedViaAuto reports whether the current session was opened by
// TryAutoUnlock, for audit/event purposes.
func (m *Manager) UnlockedViaAuto() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dek != nil && m.viaAuto
}

// ChangePassword re-wraps the DEK under a key derived from the new password.
// The re-wrap is transactional: on any failure the old password remains
// valid and no partial state is visible. Holding the manager lock for the
// whole rotation excludes concurrent encrypt/decrypt calls.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dek, err := m.unwrap(ctx, oldPassword)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dek)

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	kek := cryptox.DeriveMasterKey(newPassword, salt)
	defer common.WipeByteArray(kek)

	wrapped, err := cryptox.Encrypt(kek, dek)
	if err != nil {
		return fmt.Errorf("failed to re-wrap data key: %w", err)
	}

	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metaSalt, salt); err != nil {
			return err
		}
		return repo.Set(ctx, metaWrappedDEK, wrapped)
	})
}

// keyFor resolves the encryption key for a device scope. Empty deviceID (or
// this manager's own id) means the current device's key.
func (m *Manager) keyFor(deviceID string) ([]byte, error) {
	if m.dek == nil {
		return nil, common.ErrMasterPasswordRequired
	}
	if deviceID == "" || deviceID == m.deviceID {
		return m.dek, nil
	}
	key, ok := m.deviceKeys[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownDeviceKey, deviceID)
	}
	return key, nil
}

// EncryptString seals plaintext for the given device scope and returns a
// base64 ciphertext string. Empty deviceID means the current device.
func (m *Manager) EncryptString(plaintext string, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.keyFor(deviceID)
	if err != nil {
		return "", err
	}
	blob, err := cryptox.Encrypt(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString opens a base64 ciphertext string produced by EncryptString.
func (m *Manager) DecryptString(ciphertext string, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.keyFor(deviceID)
	if err != nil {
		return "", err
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", common.ErrInvalidFormat)
	}
	plaintext, err := cryptox.Decrypt(key, blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// ImportDeviceKey registers another device's 32-byte key so records authored
// there can be decrypted. The key is persisted wrapped under the DEK.
func (m *Manager) ImportDeviceKey(ctx context.Context, deviceID string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dek == nil {
		return common.ErrMasterPasswordRequired
	}
	if len(key) != cryptox.KeySize {
		return fmt.Errorf("%w: device key must be %d bytes", common.ErrInvalidKey, cryptox.KeySize)
	}

	wrapped, err := cryptox.Encrypt(m.dek, key)
	if err != nil {
		return fmt.Errorf("failed to wrap device key: %w", err)
	}
	if err := m.meta.Set(ctx, deviceKeyPrefix+deviceID, wrapped); err != nil {
		return err
	}

	m.deviceKeys[deviceID] = append([]byte(nil), key...)
	return nil
}

// loadDeviceKeys unwraps the persisted device-key registry with the DEK.
func (m *Manager) loadDeviceKeys(ctx context.Context, dek []byte) (map[string][]byte, error) {
	all, err := m.meta.List(ctx)
	if err != nil {
		return nil, err
	}

	keys := make(map[string][]byte)
	for k, wrapped := range all {
		if len(k) <= len(deviceKeyPrefix) || k[:len(deviceKeyPrefix)] != deviceKeyPrefix {
			continue
		}
		key, err := cryptox.Decrypt(dek, wrapped)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap key for device %s: %w", k[len(deviceKeyPrefix):], err)
		}
		keys[k[len(deviceKeyPrefix):]] = key
	}
	return keys, nil
}

// SaveConfig persists the user's unlock policy.
func (m *Manager) SaveConfig(ctx context.Context, cfg models.MasterPasswordConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSerialization, err)
	}
	return m.meta.Set(ctx, metaMPConfig, b)
}

// LoadConfig returns the persisted unlock policy, or defaults when none has
// been saved yet.
func (m *Manager) LoadConfig(ctx context.Context) (models.MasterPasswordConfig, error) {
	b, err := m.meta.Get(ctx, metaMPConfig)
	if err != nil {
		return models.MasterPasswordConfig{}, err
	}
	if b == nil {
		return models.DefaultMasterPasswordConfig(), nil
	}
	var cfg models.MasterPasswordConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return models.MasterPasswordConfig{}, fmt.Errorf("%w: %v", common.ErrSerialization, err)
	}
	return cfg, nil
}

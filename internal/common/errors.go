// Package common defines shared constants, helpers and sentinel errors used
// across VaultSync components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Crypto errors. ErrInvalidFormat means the ciphertext blob is
	// structurally broken (too short to carry a nonce); ErrDecryptionFailed
	// means authentication failed (wrong key, tampering, truncation). The two
	// are distinct so callers can tell corrupt data from a wrong password.
	ErrInvalidFormat    = errors.New("invalid ciphertext format")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrInvalidKey       = errors.New("invalid key")

	// Key manager errors.
	ErrMasterPasswordRequired = errors.New("master password required")
	ErrUnknownDeviceKey       = errors.New("unknown device key")
	ErrAlreadyInitialized     = errors.New("master password already set up")
	ErrNotInitialized         = errors.New("master password not set up")
	ErrInvalidPassword        = errors.New("invalid master password")

	// Sync target errors.
	ErrConnectionFailed     = errors.New("connection failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrQueryFailed          = errors.New("query failed")
	ErrUnsupportedProvider  = errors.New("unsupported database provider")

	// Sync flow errors.
	ErrSync                       = errors.New("sync error")
	ErrConflictResolutionRequired = errors.New("conflict resolution required")

	// Generic validation / serialization / configuration errors.
	ErrValidation    = errors.New("validation error")
	ErrSerialization = errors.New("serialization error")
	ErrConfig        = errors.New("configuration error")
)

// Package cryptox implements the authenticated encryption primitive used to
// protect data at rest and in transit to external stores, plus master-key
// derivation for the key manager.
//
// Ciphertext blobs are self-contained: a fresh random 12-byte nonce is
// prepended to the AES-256-GCM output, so a blob can be decrypted with
// nothing but the key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// SaltSize is the argon2id salt length in bytes.
	SaltSize = 32
)

// DeriveMasterKey derives a 32-byte key from a password and salt using
// argon2id (1 pass, 64 MiB, 4 lanes). Deterministic for equal inputs.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier returns a sha256 digest of the key, stored alongside the
// wrapped key so a wrong password can be detected without trial decryption
// of user data.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// Encrypt seals plaintext under the given 32-byte key with AES-256-GCM.
// A fresh random nonce is generated per call and prepended to the result.
func Encrypt(key []byte, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidKey, KeySize, len(key))
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", common.ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptionFailed, err)
	}

	// Seal appends to the nonce, producing nonce||ciphertext||tag.
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. It fails with
// common.ErrInvalidFormat when the blob is too short to carry a nonce and
// with common.ErrDecryptionFailed when authentication fails (wrong key,
// tampering, or truncation past the nonce).
func Decrypt(key []byte, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidKey, KeySize, len(key))
	}
	if len(blob) < NonceSize {
		return nil, fmt.Errorf("%w: blob is %d bytes, need at least %d", common.ErrInvalidFormat, len(blob), NonceSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

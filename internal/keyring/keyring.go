// Package keyring adapts the OS credential store to the small capability the
// key manager needs for the auto-unlock path. A platform without a usable
// credential store degrades to "always require password" via IsAvailable,
// never to a crash.
package keyring

import (
	"fmt"

	zkeyring "github.com/zalando/go-keyring"
)

// SecretStore is the capability consumed by the key manager.
type SecretStore interface {
	// Store saves a secret under (service, account), replacing any existing one.
	Store(service, account, secret string) error

	// Get returns the secret and true, or ("", false, nil) when absent.
	// Absence of an entry is not an error.
	Get(service, account string) (string, bool, error)

	// Delete removes the entry. Deleting a missing entry is a no-op success.
	Delete(service, account string) error

	// IsAvailable probes the backing store best-effort and never panics.
	IsAvailable() bool
}

// ServiceName derives the namespaced service string for one secret class, so
// multiple classes (master password, device key) never collide under one
// account.
func ServiceName(app, purpose string) string {
	return fmt.Sprintf("%s_%s", app, purpose)
}

// SystemStore is the real adapter over the platform credential manager.
type SystemStore struct{}

// NewSystemStore returns an adapter over the OS credential store.
func NewSystemStore() *SystemStore {
	return &SystemStore{}
}

func (s *SystemStore) Store(service, account, secret string) error {
	if err := zkeyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", service, account, err)
	}
	return nil
}

func (s *SystemStore) Get(service, account string) (string, bool, error) {
	secret, err := zkeyring.Get(service, account)
	if err != nil {
		if err == zkeyring.ErrNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("keyring get %s/%s: %w", service, account, err)
	}
	return secret, true, nil
}

func (s *SystemStore) Delete(service, account string) error {
	err := zkeyring.Delete(service, account)
	if err != nil && err != zkeyring.ErrNotFound {
		return fmt.Errorf("keyring delete %s/%s: %w", service, account, err)
	}
	return nil
}

// IsAvailable attempts a dummy store/delete cycle under a probe service name.
func (s *SystemStore) IsAvailable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	const service, account = "vaultsync_probe", "probe"
	if err := zkeyring.Set(service, account, "probe"); err != nil {
		return false
	}
	_ = zkeyring.Delete(service, account)
	return true
}

package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "mail-assistant"

// SecretStore is a get/set/delete key-value store for secrets. Get
// reports ok == false for a missing key.
type SecretStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Keyring is a SecretStore backed by the operating system keyring.
type Keyring struct {
	ring keyring.Keyring
}

var _ SecretStore = (*Keyring)(nil)

// Open returns a Keyring on the first available system backend.
func Open() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  credentialsDir(),
		FilePasswordFunc:         keyring.FixedStringPrompt("mail-assistant-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.config/mail-assistant/credentials"
	}
	return filepath.Join(home, ".config", "mail-assistant", "credentials")
}

// Get retrieves a secret by key.
func (k *Keyring) Get(key string) (string, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), true, nil
}

// Set stores a secret by key.
func (k *Keyring) Set(key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret. Removing a missing key succeeds.
func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

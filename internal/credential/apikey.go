package credential

import (
	"os"
	"strings"

	"github.com/nhle/mail-assistant/internal/apperr"
)

// Secret keys.
const (
	APIKeyName     = "claude-api-key"
	OAuthTokenName = "mailbox-oauth-token"
)

// SetAPIKey stores the completion-provider key.
func SetAPIKey(s SecretStore, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.New(apperr.ValidationFailed, "API key must not be empty")
	}
	if err := s.Set(APIKeyName, key); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "storing API key", err)
	}
	return nil
}

// GetAPIKey returns the stored key. A missing key is not an error.
func GetAPIKey(s SecretStore) (string, bool, error) {
	key, ok, err := s.Get(APIKeyName)
	if err != nil {
		return "", false, apperr.Wrap(apperr.StorageUnavailable, "reading API key", err)
	}
	return key, ok && key != "", nil
}

// DeleteAPIKey removes the stored key.
func DeleteAPIKey(s SecretStore) error {
	if err := s.Delete(APIKeyName); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "deleting API key", err)
	}
	return nil
}

// APIKeyLookup resolves the key from envVar first, then the store.
func APIKeyLookup(s SecretStore, envVar string) func() (string, bool, error) {
	return func() (string, bool, error) {
		if envVar != "" {
			if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
				return v, true, nil
			}
		}
		return GetAPIKey(s)
	}
}

// MaskKey renders key for display with only its last four characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return "sk-..." + string(runes[len(runes)-4:])
}

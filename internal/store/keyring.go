package store

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/bodhiapps/bodhi-auth/internal/log"
)

// Ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// DefaultKeyringService is the OS keyring service name used by the CLI.
const DefaultKeyringService = "bodhi-auth"

// KeyringStore keeps each session key as a separate OS keyring secret, so
// tokens never land on disk in plaintext.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed store under the given service
// name. An empty service falls back to DefaultKeyringService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(key string) (string, bool) {
	v, err := keyring.Get(s.service, key)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.LogWarnWithFields("store", "Keyring read failed", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		return "", false
	}
	return v, true
}

func (s *KeyringStore) Set(key, value string) {
	if err := keyring.Set(s.service, key, value); err != nil {
		log.LogErrorWithFields("store", "Keyring write failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (s *KeyringStore) Delete(key string) {
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.LogErrorWithFields("store", "Keyring delete failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

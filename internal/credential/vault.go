package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/brandon/mailsync/internal/config"
)

const serviceName = "mailsync"

// Vault is an opaque key/value secret store
type Vault interface {
	Get(key string) (string, bool, error)
	Set(key, secret string) error
}

func accessTokenKey(accountID string) string {
	return accountID + ":access_token"
}

func refreshTokenKey(accountID string) string {
	return accountID + ":refresh_token"
}

// keyringConfig maps the vault settings onto keyring options. The encrypted
// file store is only offered when a password is configured.
func keyringConfig(cfg config.KeyringConfig) (keyring.Config, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
	}
	if cfg.Password != "" {
		backends = append(backends, keyring.FileBackend)
	}
	if cfg.Backend == "file" {
		if cfg.Password == "" {
			return keyring.Config{}, errors.New("keyring.password is required for the file backend")
		}
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	fileDir := cfg.FileDir
	if fileDir == "" {
		fileDir = "~/.config/mailsync/credentials"
	}

	return keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.Password),
		KeychainTrustApplication: true,
	}, nil
}

// OpenKeyring opens the system keyring, or an encrypted file store when the
// file backend is configured.
func OpenKeyring(cfg config.KeyringConfig) (keyring.Keyring, error) {
	ringCfg, err := keyringConfig(cfg)
	if err != nil {
		return nil, err
	}
	ring, err := keyring.Open(ringCfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringVault stores secrets in a keyring
type KeyringVault struct {
	ring keyring.Keyring
}

// NewKeyringVault wraps an opened keyring
func NewKeyringVault(ring keyring.Keyring) *KeyringVault {
	return &KeyringVault{ring: ring}
}

// Get returns the secret stored under key. A missing key is not an error.
func (v *KeyringVault) Get(key string) (string, bool, error) {
	item, err := v.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting credential %q: %w", key, err)
	}
	if len(item.Data) == 0 {
		return "", false, nil
	}
	return string(item.Data), true, nil
}

// Set stores secret under key, replacing any previous value
func (v *KeyringVault) Set(key, secret string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(secret),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

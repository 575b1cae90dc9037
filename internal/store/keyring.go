package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name entries are stored under.
const DefaultService = "twittter"

// KeyringKV stores values in the OS keyring (Keychain, Secret Service,
// Windows Credential Manager). Values must be text; the credential record is JSON.
type KeyringKV struct {
	service string
}

func NewKeyringKV(service string) *KeyringKV {
	if service == "" {
		service = DefaultService
	}
	return &KeyringKV{service: service}
}

func (k *KeyringKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

func (k *KeyringKV) Set(_ context.Context, key string, val []byte) error {
	if err := keyring.Set(k.service, key, string(val)); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (k *KeyringKV) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}

// Available probes the keyring with a throwaway entry.
func (k *KeyringKV) Available() bool {
	probe := k.service + "::probe"
	if err := keyring.Set(k.service, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(k.service, probe)
	return true
}

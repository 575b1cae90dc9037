package store

import (
	"context"
	"fmt"

	"github.com/Li-Victor/Twittter/internal/logging"
)

// CredentialOptions selects the backend for the credential record.
type CredentialOptions struct {
	Service   string // keyring service name
	Dir       string // file fallback directory
	NoKeyring bool
}

// OpenCredentialKV prefers the OS keyring and falls back to a locked file in
// opts.Dir when the keyring is disabled or unusable. When the keyring wins,
// any entries left in the fallback file are moved into it.
func OpenCredentialKV(ctx context.Context, opts CredentialOptions) KV {
	file := NewFileKV(opts.Dir)
	if opts.NoKeyring {
		return file
	}
	ring := NewKeyringKV(opts.Service)
	if !ring.Available() {
		logging.Warn("keyring unavailable, storing credentials in plaintext", map[string]any{"path": file.Path()})
		return file
	}
	if err := MigrateToKeyring(ctx, file, ring); err != nil {
		logging.Warn("credential migration failed", map[string]any{"err": err.Error()})
	}
	return ring
}

// MigrateToKeyring copies every entry from the fallback file into the keyring
// and removes the file. A missing file is not an error.
func MigrateToKeyring(ctx context.Context, file *FileKV, ring KV) error {
	all, err := file.All(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}
	for k, v := range all {
		if err := ring.Set(ctx, k, v); err != nil {
			return fmt.Errorf("migrate %s: %w", k, err)
		}
	}
	if err := file.Remove(ctx); err != nil {
		return fmt.Errorf("remove %s: %w", file.Path(), err)
	}
	logging.Info("migrated credentials to keyring", map[string]any{"entries": len(all)})
	return nil
}

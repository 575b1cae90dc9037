package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the JSON file FileKV writes inside its directory.
const FileName = "credentials.json"

// LockTimeout bounds how long FileKV waits for the cross-process lock.
const LockTimeout = 2 * time.Second

// FileKV stores all keys in one JSON file (0600), guarded by an flock so two
// processes never interleave a read-modify-write. Writes go through a temp
// file and rename.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) *FileKV {
	return &FileKV{dir: dir}
}

// Path returns the data file path.
func (f *FileKV) Path() string {
	return filepath.Join(f.dir, FileName)
}

func (f *FileKV) lockPath() string {
	return filepath.Join(f.dir, ".lock")
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val []byte
		ok  bool
	)
	err := f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		val, ok = all[key]
		return nil
	})
	return val, ok, err
}

func (f *FileKV) Set(ctx context.Context, key string, val []byte) error {
	return f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		all[key] = val
		return f.saveAll(all)
	})
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	return f.withLock(ctx, func() error {
		all, err := f.loadAll()
		if err != nil {
			return err
		}
		if _, ok := all[key]; !ok {
			return nil
		}
		delete(all, key)
		return f.saveAll(all)
	})
}

// All returns every stored entry.
func (f *FileKV) All(ctx context.Context) (map[string][]byte, error) {
	var out map[string][]byte
	err := f.withLock(ctx, func() error {
		all, err := f.loadAll()
		out = all
		return err
	})
	return out, err
}

// Remove deletes the data file.
func (f *FileKV) Remove(ctx context.Context) error {
	return f.withLock(ctx, func() error {
		err := os.Remove(f.Path())
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
}

func (f *FileKV) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	fl := flock.New(f.lockPath())

	lctx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.lockPath(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: timed out", f.lockPath())
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

func (f *FileKV) loadAll() (map[string][]byte, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string][]byte), nil
		}
		return nil, err
	}
	all := make(map[string][]byte)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path(), err)
	}
	return all, nil
}

func (f *FileKV) saveAll(all map[string][]byte) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	dest := f.Path()
	if err := os.Rename(tmpPath, dest); err != nil {
		// Windows refuses to rename over an existing file.
		if runtime.GOOS == "windows" {
			_ = os.Remove(dest)
			return os.Rename(tmpPath, dest)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

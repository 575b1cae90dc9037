// Package store persists the credential and the timeline snapshot behind a
// narrow key-value interface. Backends: OS keyring, a locked JSON file,
// SQLite and memory.
package store

import (
	"context"
	"sync"
)

// KV is the minimal persistence contract. Get reports absence with ok=false
// and a nil error; deleting an absent key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

// Error indicates a storage failure.
type Error struct {
	Operation string // "load", "save", "delete"
	Key       string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Operation + " " + e.Key
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// MemoryKV keeps values in process memory. Useful for tests and for hosts
// that do not want persistence.
type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string][]byte)}
}

func (k *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (k *MemoryKV) Set(_ context.Context, key string, val []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = append([]byte(nil), val...)
	return nil
}

func (k *MemoryKV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}

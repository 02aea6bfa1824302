// Package local implements the browser-style key/value store the club falls
// back to when no remote backend is reachable, and the Backend built on it.
package local

import (
	"fmt"
	"sort"
	"sync"

	"runclub/internal/club"
)

// DefaultMaxSize mirrors the usual per-origin web storage quota.
const DefaultMaxSize int64 = 5 << 20

// KVStore holds string keys with opaque values. Set fails with
// club.ErrStorageQuotaExceeded, without writing, when the total size of all
// keys and values would exceed the store's limit.
type KVStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Size() (int64, error)
	Close() error
}

// MemoryKV is an in-process KVStore.
type MemoryKV struct {
	mu      sync.RWMutex
	data    map[string][]byte
	maxSize int64
}

var _ KVStore = (*MemoryKV)(nil)

// NewMemoryKV creates an empty store. maxSize <= 0 means unlimited.
func NewMemoryKV(maxSize int64) *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte), maxSize: maxSize}
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxSize > 0 {
		size := m.sizeLocked() + int64(len(key)+len(value))
		if old, ok := m.data[key]; ok {
			size -= int64(len(key) + len(old))
		}
		if size > m.maxSize {
			return fmt.Errorf("writing %s (%d bytes, limit %d): %w", key, len(value), m.maxSize, club.ErrStorageQuotaExceeded)
		}
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeLocked(), nil
}

func (m *MemoryKV) Close() error { return nil }

func (m *MemoryKV) sizeLocked() int64 {
	var n int64
	for k, v := range m.data {
		n += int64(len(k) + len(v))
	}
	return n
}

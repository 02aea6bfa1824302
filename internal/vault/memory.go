package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"runclub/internal/club"
)

// MemoryVault keeps snapshots in memory. It is safe for concurrent use.
type MemoryVault struct {
	name     string
	mu       sync.RWMutex
	blobs    map[string][]byte
	versions map[string]int64
}

// NewMemoryVault creates an empty vault reported under name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		blobs:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Name returns the configured vault name.
func (m *MemoryVault) Name() string { return m.name }

// Put stores a copy of the snapshot read from r.
func (m *MemoryVault) Put(ctx context.Context, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkVersion(name, m.versions[name], version); err != nil {
		return err
	}
	m.blobs[name] = data
	m.versions[name] = version
	return nil
}

// Get writes the stored snapshot to w.
func (m *MemoryVault) Get(ctx context.Context, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	data, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("snapshot %q: %w", name, club.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Version returns the recorded version, or 0 when name was never pushed.
func (m *MemoryVault) Version(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[name], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ club.Vault = (*MemoryVault)(nil)

package local

import (
	"fmt"
	"os"
	"path/filepath"

	"runclub/internal/club"
	"runclub/internal/config"
)

// NewKVFromConfig creates a KVStore based on the local config type.
func NewKVFromConfig(cfg config.LocalConfig, hostID string, clock club.Clock) (KVStore, error) {
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite local store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return NewSQLiteKV(filepath.Join(cfg.DataDir, hostID+".db"), maxSize, clock)
	case "memory":
		return NewMemoryKV(maxSize), nil
	default:
		return nil, fmt.Errorf("unknown local store type: %s", cfg.Type)
	}
}

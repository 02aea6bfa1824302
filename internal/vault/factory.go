package vault

import (
	"context"
	"fmt"

	"runclub/internal/club"
	"runclub/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config
// type. The name selects the vault for snapshot push and pull, so it is
// required.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (club.Vault, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%s vault requires a name", cfg.Type)
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		return NewS3VaultFromConfig(ctx, cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// checkVersion rejects replacing a stored snapshot with an older one.
func checkVersion(name string, stored, version int64) error {
	if version < stored {
		return fmt.Errorf("snapshot %q version %d is older than stored %d: %w", name, version, stored, club.ErrStaleSnapshot)
	}
	return nil
}

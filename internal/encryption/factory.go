package encryption

import (
	"fmt"

	"runclub/internal/club"
	"runclub/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Returns nil, nil when snapshots are stored unencrypted.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (club.Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewFakeEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"runclub/internal/config"
)

// Environment variables read by the CLI.
const (
	EnvConfigPath = "RUNCLUB_CONFIG_PATH"
	EnvHome       = "RUNCLUB_HOME"
	EnvMongoURI   = "RUNCLUB_MONGO_URI"
)

// GetDefaults returns application default paths, checking environment variables first.
// A .env file in the working directory is loaded before the variables are read;
// variables already set in the environment win.
// Environment variables:
//   - RUNCLUB_CONFIG_PATH: config file location (default: ~/.config/runclub.toml)
//   - RUNCLUB_HOME: base directory for runclub data (default: ~/.local/share/runclub)
func GetDefaults() (map[string]string, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadEnvFile loads variables from path into the environment. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config values that may come from the environment.
func ApplyEnv(cfg *config.Config) {
	if uri := os.Getenv(EnvMongoURI); uri != "" {
		cfg.Remote.URI = uri
		if cfg.Remote.Type == "" || cfg.Remote.Type == "none" {
			cfg.Remote.Type = "mongo"
		}
	}
}

// getConfigPath returns the config file path, checking RUNCLUB_CONFIG_PATH first,
// then falling back to the default ~/.config/runclub.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "runclub.toml"), nil
}

// getBaseDir returns the base directory for runclub data, checking RUNCLUB_HOME first,
// then falling back to the XDG default ~/.local/share/runclub.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "runclub"), nil
}

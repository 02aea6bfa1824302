package app

import (
	"os"
	"path/filepath"
	"testing"

	"runclub/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/runclub")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/runclub" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/runclub")
		}
		if defaults["log_dir"] != "/custom/runclub/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/runclub/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "runclub.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "runclub")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
		if defaults["log_dir"] != filepath.Join(wantBase, "log") {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], filepath.Join(wantBase, "log"))
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadEnvFile() error = %v", err)
		}
	})

	t.Run("does not override existing variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := EnvHome + "=/from/dotenv\n" + EnvMongoURI + "=mongodb://dotenv:27017\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		t.Setenv(EnvHome, "/from/env")
		t.Setenv(EnvMongoURI, "")
		os.Unsetenv(EnvMongoURI)

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile() error = %v", err)
		}
		if got := os.Getenv(EnvHome); got != "/from/env" {
			t.Errorf("%s = %q, want /from/env", EnvHome, got)
		}
		if got := os.Getenv(EnvMongoURI); got != "mongodb://dotenv:27017" {
			t.Errorf("%s = %q, want value from .env", EnvMongoURI, got)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		remote   config.RemoteConfig
		wantType string
		wantURI  string
	}{
		{"unset leaves config alone", "", config.RemoteConfig{Type: "none"}, "none", ""},
		{"uri enables mongo", "mongodb://h:27017", config.RemoteConfig{Type: "none"}, "mongo", "mongodb://h:27017"},
		{"uri overrides configured mongo", "mongodb://new", config.RemoteConfig{Type: "mongo", URI: "mongodb://old"}, "mongo", "mongodb://new"},
		{"memory remote keeps its type", "mongodb://h", config.RemoteConfig{Type: "memory"}, "memory", "mongodb://h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvMongoURI, tt.uri)
			cfg := &config.Config{Remote: tt.remote}
			ApplyEnv(cfg)
			if cfg.Remote.Type != tt.wantType || cfg.Remote.URI != tt.wantURI {
				t.Errorf("Remote = %+v, want type %q uri %q", cfg.Remote, tt.wantType, tt.wantURI)
			}
		})
	}
}

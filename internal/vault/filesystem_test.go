package vault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")

	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "snapshots")); err != nil {
		t.Errorf("snapshots directory not created: %v", err)
	}
	if v.Name() != "test" {
		t.Errorf("Name() = %q, want %q", v.Name(), "test")
	}
}

func TestFileSystemVault_RejectsUnsafeNames(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	for _, name := range []string{"", "../escape.json", "nested/host.json", ".hidden"} {
		t.Run(name, func(t *testing.T) {
			if err := v.Put(context.Background(), name, strings.NewReader("x"), 1, 1); err == nil {
				t.Errorf("Put(%q) expected error", name)
			}
		})
	}
}

func TestFileSystemVault_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	_ = v.Put(context.Background(), "host.json", strings.NewReader("short"), 99, 1)

	entries, err := os.ReadDir(filepath.Join(root, "snapshots"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left behind: %s", e.Name())
	}
}

func TestFileSystemVault_ValidateSetupMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := v.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() expected error for removed root")
	}
}

package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"runclub/internal/club"
)

// FileSystemVault stores snapshots as files under a root directory:
//
//	<root>/
//	  snapshots/
//	    <name>          (snapshot blob)
//	    <name>.version  (version marker)
type FileSystemVault struct {
	name string
	root string
	dir  string
}

// NewFileSystemVault creates the directory layout under root if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, dir: dir}, nil
}

// Name returns the configured vault name.
func (v *FileSystemVault) Name() string { return v.name }

// Put writes the snapshot atomically and records its version beside it.
// A version lower than the stored one fails with club.ErrStaleSnapshot.
func (v *FileSystemVault) Put(ctx context.Context, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := v.path(name)
	if err != nil {
		return err
	}
	stored, err := v.Version(ctx, name)
	if err != nil {
		return err
	}
	if err := checkVersion(name, stored, version); err != nil {
		return err
	}
	if err := writeAtomic(path, r, size); err != nil {
		return err
	}
	marker := strings.NewReader(strconv.FormatInt(version, 10))
	return writeAtomic(path+".version", marker, marker.Size())
}

func (v *FileSystemVault) Get(ctx context.Context, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := v.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot %q: %w", name, club.ErrNotFound)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// Version returns 0 if no version marker exists.
func (v *FileSystemVault) Version(ctx context.Context, name string) (int64, error) {
	path, err := v.path(name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path + ".version")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.dir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// path rejects names that would escape the snapshot directory.
func (v *FileSystemVault) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return filepath.Join(v.dir, name), nil
}

// writeAtomic writes r to a temp file next to dest and renames it into place.
func writeAtomic(dest string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ club.Vault = (*FileSystemVault)(nil)

// Package fsutil provides filesystem utilities for atomic operations and syncing.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks in-flight temp files. Anything left with this prefix is
// debris from an interrupted write and is never a committed artifact.
const TempPrefix = ".draudit-tmp-"

// AtomicWrite writes data to a temporary file, fsyncs, then renames to target path.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomic write rename: %w", err)
	}
	if err := FsyncDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("atomic write fsync dir: %w", err)
	}
	return nil
}

// AtomicCreate writes data to path only if nothing exists there yet. The
// data is fully written and synced under a temp name, then hard-linked into
// place, so readers never observe a partial file and a concurrent creator of
// the same path either wins or sees the existing file. created reports
// whether this call placed the file.
func AtomicCreate(path string, data []byte, perm os.FileMode) (created bool, err error) {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return false, fmt.Errorf("atomic create: %w", err)
	}
	defer os.Remove(tmpPath)

	linkErr := os.Link(tmpPath, path)
	switch {
	case linkErr == nil:
	case errors.Is(linkErr, fs.ErrExist):
		return false, nil
	default:
		// Filesystems without hard links: fall back to check-then-rename.
		if _, statErr := os.Lstat(path); statErr == nil {
			return false, nil
		}
		if err := os.Rename(tmpPath, path); err != nil {
			return false, fmt.Errorf("atomic create rename: %w", err)
		}
	}
	if err := FsyncDir(filepath.Dir(path)); err != nil {
		return true, fmt.Errorf("atomic create fsync dir: %w", err)
	}
	return true, nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create tmp: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("write tmp: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return "", fmt.Errorf("chmod tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("fsync tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close tmp: %w", err)
	}
	success = true
	return tmpPath, nil
}

// IsTemp reports whether name is an in-flight temp file name.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// FsyncDir fsyncs a directory to ensure rename visibility is durable.
func FsyncDir(dirPath string) error {
	d, err := os.Open(dirPath)
	if err != nil {
		return fmt.Errorf("fsync dir open: %w", err)
	}
	defer d.Close()
	return d.Sync()
}

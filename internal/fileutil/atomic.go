// Package fileutil provides file writing helpers for generated output.
package fileutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Injectable functions for testing.
var (
	osCreateTemp  = os.CreateTemp
	osRename      = os.Rename
	osReadFile    = os.ReadFile
	tempFileWrite = func(f *os.File, data []byte) (int, error) {
		return f.Write(data)
	}
	tempFileClose = func(f io.Closer) error {
		return f.Close()
	}
)

// AtomicWrite writes data to path through a temporary file in the same
// directory followed by a rename, so readers never see a partial file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tempFile, err := osCreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// Rename to final path (atomic on POSIX)
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// WriteIfChanged calls AtomicWrite unless path already holds data. It
// reports whether the file was written.
func WriteIfChanged(path string, data []byte, perm os.FileMode) (bool, error) {
	if existing, err := osReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := AtomicWrite(path, data, perm); err != nil {
		return false, err
	}
	return true, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the sagechat application.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes a file via write-temp, fsync, rename, so a
// crash mid-save leaves either the old file or the complete new one on
// disk, never a truncated config or transcript export. The parent
// directory is created with 0755 if missing.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return atomicWrite(path, data, perm, 0755)
}

// AtomicWriteFileWithDir is AtomicWriteFile with an explicit mode for
// a parent directory that has to be created (the export directory is
// made world-readable, the config directory is not).
func AtomicWriteFileWithDir(path string, data []byte, filePerm, dirPerm os.FileMode) error {
	return atomicWrite(path, data, filePerm, dirPerm)
}

func atomicWrite(path string, data []byte, filePerm, dirPerm os.FileMode) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	// The temp file must live in the target directory: rename is only
	// atomic within one filesystem.
	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("failed to write data: %w", err))
	}

	// Sync before rename: the rename must never land ahead of the data.
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync data to disk: %w", err))
	}

	// Close before rename; Windows refuses to rename an open file.
	if err := tmp.Close(); err != nil {
		return fail(fmt.Errorf("failed to close temp file: %w", err))
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fail(fmt.Errorf("failed to set file permissions: %w", err))
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fail(fmt.Errorf("failed to rename temp file: %w", err))
	}
	return nil
}

// Package util provides common utility functions for notion-backup.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatFileSize formats a byte count in human-readable form.
func FormatFileSize(sizeBytes int64) string {
	if sizeBytes == 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(sizeBytes)
	i := 0
	for size >= 1024.0 && i < len(units)-1 {
		size /= 1024.0
		i++
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// TimestampString formats t for use in backup filenames.
func TimestampString(t time.Time) string {
	return t.UTC().Format("2006-01-02_15-04-05")
}

// AtomicWriteReader streams r to a file atomically by first writing to a
// temporary file in the same directory, syncing it, then renaming it to the
// target path. A crash mid-download never leaves a truncated artifact at the
// final path.
//
// The atomic rename operation is guaranteed by POSIX on the same filesystem.
// Returns the number of bytes written.
func AtomicWriteReader(path string, r io.Reader, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	// Temp file in same directory (required for atomic rename)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("rename temp to final: %w", err)
	}

	success = true
	return n, nil
}

// AtomicWriteFile is a convenience wrapper for AtomicWriteReader that accepts
// a byte slice.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := AtomicWriteReader(path, bytes.NewReader(data), perm)
	return err
}

// TruncateString truncates s to maxLen with an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

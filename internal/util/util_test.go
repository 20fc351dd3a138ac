package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestTimestampString(t *testing.T) {
	ts := time.Date(2026, 8, 29, 13, 5, 9, 0, time.UTC)
	if got := TimestampString(ts); got != "2026-08-29_13-05-09" {
		t.Errorf("TimestampString = %q", got)
	}
}

func TestAtomicWriteReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "artifact.zip")

	n, err := AtomicWriteReader(path, strings.NewReader("payload"), 0644)
	if err != nil {
		t.Fatalf("AtomicWriteReader: %v", err)
	}
	if n != int64(len("payload")) {
		t.Errorf("wrote %d bytes, want %d", n, len("payload"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("read back %q", data)
	}

	// No temp file debris left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := AtomicWriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 100); got != "short" {
		t.Errorf("TruncateString(short) = %q", got)
	}
	got := TruncateString(strings.Repeat("x", 50), 10)
	if len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Errorf("TruncateString = %q", got)
	}
}

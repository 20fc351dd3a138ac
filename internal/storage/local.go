package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
	"github.com/nikhilbadyal/notion-backup/internal/util"
)

const defaultPattern = "notion-export-*.zip"

// LocalSink stores backups on the local filesystem.
type LocalSink struct {
	dir     string
	pattern string
	logger  *slog.Logger
}

// NewLocalSink creates the backup directory if needed.
func NewLocalSink(cfg config.LocalStorageConfig, logger *slog.Logger) (*LocalSink, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "./backups"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.ErrStorageFailed("", fmt.Errorf("create backup directory %s: %w", dir, err))
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}

	logger.Debug("local storage ready", "path", dir)
	return &LocalSink{dir: dir, pattern: pattern, logger: logger}, nil
}

func (s *LocalSink) Name() string { return "local" }

// Dir exposes the backup directory, used as the staging area by the
// rclone backend.
func (s *LocalSink) Dir() string { return s.dir }

// Store writes the artifact atomically. If a backup for the job
// already exists, the write is skipped and the existing location
// returned.
func (s *LocalSink) Store(ctx context.Context, jobID string, content io.Reader, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if existing, ok, err := s.findJob(jobID); err != nil {
		return "", apperrors.ErrStorageFailed(jobID, err)
	} else if ok {
		s.logger.Info("backup for job already stored, skipping", "job_id", jobID, "location", existing)
		return existing, nil
	}

	dest := filepath.Join(s.dir, backupFilename(jobID, meta))
	written, err := util.AtomicWriteReader(dest, content, 0o644)
	if err != nil {
		return "", apperrors.ErrStorageFailed(jobID, err)
	}

	s.logger.Info("backup stored",
		"location", dest, "size", util.FormatFileSize(written))
	return dest, nil
}

func (s *LocalSink) List(ctx context.Context) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.ErrStorageFailed("", fmt.Errorf("read backup directory: %w", err))
	}

	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match, err := doublestar.Match(s.pattern, entry.Name())
		if err != nil {
			return nil, apperrors.ErrConfigInvalid("storage.local.pattern", err.Error())
		}
		if !match {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Name:       entry.Name(),
			Location:   filepath.Join(s.dir, entry.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}

	// Newest first.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModifiedAt.After(backups[j].ModifiedAt)
	})
	return backups, nil
}

func (s *LocalSink) Cleanup(ctx context.Context, keep int) (int, error) {
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Location); err != nil {
			s.logger.Warn("failed to remove old backup", "name", b.Name, "error", err)
			continue
		}
		s.logger.Info("removed old backup", "name", b.Name, "size", util.FormatFileSize(b.SizeBytes))
		removed++
	}
	return removed, nil
}

// TestConnection verifies the directory is writable.
func (s *LocalSink) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe := filepath.Join(s.dir, ".write-test")
	if err := util.AtomicWriteFile(probe, []byte("ok"), 0o644); err != nil {
		return apperrors.ErrStorageFailed("", fmt.Errorf("backup directory not writable: %w", err))
	}
	_ = os.Remove(probe)
	return nil
}

// findJob looks for an already-stored backup belonging to the job.
func (s *LocalSink) findJob(jobID string) (string, bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false, fmt.Errorf("read backup directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && matchesJob(entry.Name(), jobID) {
			return filepath.Join(s.dir, entry.Name()), true, nil
		}
	}
	return "", false, nil
}

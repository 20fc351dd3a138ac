// Package storage provides the backup storage backends. It supports
// local filesystem storage and remote storage through the rclone CLI;
// the backend is selected by configuration key.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
	"github.com/nikhilbadyal/notion-backup/internal/retry"
	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// Metadata describes the artifact being stored, used to build the
// destination filename.
type Metadata struct {
	Format    string
	Flattened bool
	Timestamp time.Time
	// SizeBytes is a hint from the transport; -1 when unknown.
	SizeBytes int64
}

// Backup is one stored archive, as reported by List.
type Backup struct {
	Name       string
	Location   string
	SizeBytes  int64
	ModifiedAt time.Time
}

// Sink accepts fetched artifacts and persists them. Store must be safe
// to call twice with the same jobID: the second call is a no-op that
// returns the existing location.
type Sink interface {
	Store(ctx context.Context, jobID string, content io.Reader, meta Metadata) (location string, err error)
	List(ctx context.Context) ([]Backup, error)
	// Cleanup removes all but the newest keep backups and reports how
	// many were removed.
	Cleanup(ctx context.Context, keep int) (removed int, err error)
	TestConnection(ctx context.Context) error
	// Name identifies the backend in logs and CLI output.
	Name() string
}

// New selects a backend by configuration key. retryCfg governs the
// backend's own transient retries, such as the rclone upload.
func New(cfg config.StorageConfig, retryCfg retry.Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case config.StorageLocal, "":
		return NewLocalSink(cfg.Local, logger)
	case config.StorageRclone:
		return NewRcloneSink(cfg.Rclone, cfg.Local.Path, retryCfg, logger)
	default:
		return nil, apperrors.ErrConfigInvalid("storage.backend",
			fmt.Sprintf("unknown backend %q (want local or rclone)", cfg.Backend))
	}
}

var jobKeyStrip = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// jobKey derives the filename fragment that makes stores idempotent
// per job. Remote job IDs are UUIDs; anything unusual is sanitized.
func jobKey(jobID string) string {
	key := jobKeyStrip.ReplaceAllString(jobID, "")
	if len(key) > 12 {
		key = key[:12]
	}
	if key == "" {
		key = "unknown"
	}
	return strings.ToLower(key)
}

// backupFilename builds the destination name for an artifact. The job
// key suffix is what duplicate-store detection matches on.
func backupFilename(jobID string, meta Metadata) string {
	format := meta.Format
	if format == "" {
		format = "markdown"
	}
	suffix := ""
	if meta.Flattened {
		suffix = "-flattened"
	}
	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("notion-export-%s%s_%s_%s.zip",
		format, suffix, util.TimestampString(ts), jobKey(jobID))
}

// matchesJob reports whether a stored filename belongs to the job.
func matchesJob(name, jobID string) bool {
	return strings.HasSuffix(name, "_"+jobKey(jobID)+".zip")
}

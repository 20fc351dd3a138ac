package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
	"github.com/nikhilbadyal/notion-backup/internal/retry"
	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// commandRunner executes an external command and returns its stdout.
// Swapped out in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, args[0], err, detail)
		}
		return nil, fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return out, nil
}

// RcloneSink uploads backups to a remote through the rclone CLI.
// Artifacts are staged on the local filesystem first, then copied.
type RcloneSink struct {
	remote     string
	remotePath string
	configPath string
	extraArgs  []string
	keepLocal  bool
	stagingDir string
	retry      retry.Config
	logger     *slog.Logger
	run        commandRunner
}

// NewRcloneSink validates the remote configuration. stagingDir is
// where artifacts land before upload; it doubles as the retained local
// copy when keep_local is set.
func NewRcloneSink(cfg config.RcloneStorageConfig, stagingDir string, retryCfg retry.Config, logger *slog.Logger) (*RcloneSink, error) {
	if cfg.Remote == "" {
		return nil, apperrors.ErrConfigMissing("storage.rclone.remote")
	}
	remotePath := cfg.Path
	if remotePath == "" {
		remotePath = "notion-backups"
	}
	if stagingDir == "" {
		stagingDir = "./backups"
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, apperrors.ErrStorageFailed("", fmt.Errorf("create staging directory %s: %w", stagingDir, err))
	}

	logger.Debug("rclone storage ready", "remote", cfg.Remote, "path", remotePath)
	return &RcloneSink{
		remote:     cfg.Remote,
		remotePath: remotePath,
		configPath: cfg.ConfigPath,
		extraArgs:  cfg.ExtraArgs,
		keepLocal:  cfg.KeepLocal,
		stagingDir: stagingDir,
		retry:      retryCfg,
		logger:     logger,
		run:        execRunner,
	}, nil
}

func (s *RcloneSink) Name() string { return "rclone" }

func (s *RcloneSink) remoteDest() string {
	return s.remote + ":" + s.remotePath
}

// args builds an rclone invocation with the shared options.
func (s *RcloneSink) args(operation string, operands ...string) []string {
	out := []string{operation}
	if s.configPath != "" {
		out = append(out, "--config", s.configPath)
	}
	out = append(out, operands...)
	out = append(out, s.extraArgs...)
	return out
}

// maskArgs hides the rclone config path in log output; the path often
// reveals the credential layout of the host.
func maskArgs(args []string) string {
	masked := make([]string, len(args))
	for i, a := range args {
		if i > 0 && args[i-1] == "--config" {
			masked[i] = ".../" + filepath.Base(a)
			continue
		}
		masked[i] = a
	}
	return "rclone " + strings.Join(masked, " ")
}

func (s *RcloneSink) rclone(ctx context.Context, operation string, operands ...string) ([]byte, error) {
	args := s.args(operation, operands...)
	s.logger.Debug("running rclone", "cmd", maskArgs(args))
	return s.run(ctx, "rclone", args...)
}

// Store stages the artifact locally, uploads it, and removes the local
// copy unless keep_local is configured. A backup already present on
// the remote for the same job makes this a no-op.
func (s *RcloneSink) Store(ctx context.Context, jobID string, content io.Reader, meta Metadata) (string, error) {
	remote, err := s.listRemote(ctx)
	if err != nil {
		return "", err
	}
	for _, b := range remote {
		if matchesJob(b.Name, jobID) {
			s.logger.Info("backup for job already on remote, skipping", "job_id", jobID, "location", b.Location)
			return b.Location, nil
		}
	}

	name := backupFilename(jobID, meta)
	staged := filepath.Join(s.stagingDir, name)
	written, err := util.AtomicWriteReader(staged, content, 0o644)
	if err != nil {
		return "", apperrors.ErrStorageFailed(jobID, fmt.Errorf("stage artifact: %w", err))
	}

	// The artifact is staged, so the upload can be retried without
	// re-reading the caller's stream. A failed copy is a transport
	// problem until retries run out.
	err = retry.Do(ctx, s.retry, s.logger, "rclone upload", func() error {
		if _, runErr := s.rclone(ctx, "copy", staged, s.remoteDest()); runErr != nil {
			return apperrors.ErrNetwork("rclone copy", runErr)
		}
		return nil
	})
	if err != nil {
		return "", apperrors.ErrStorageFailed(jobID, fmt.Errorf("upload to remote: %w", err))
	}

	location := s.remoteDest() + "/" + name
	s.logger.Info("backup uploaded",
		"location", location, "size", util.FormatFileSize(written))

	if !s.keepLocal {
		if err := os.Remove(staged); err != nil {
			s.logger.Warn("failed to remove staged artifact", "path", staged, "error", err)
		}
	}
	return location, nil
}

func (s *RcloneSink) List(ctx context.Context) ([]Backup, error) {
	return s.listRemote(ctx)
}

func (s *RcloneSink) listRemote(ctx context.Context) ([]Backup, error) {
	out, err := s.rclone(ctx, "lsjson", s.remoteDest())
	if err != nil {
		return nil, apperrors.ErrStorageFailed("", fmt.Errorf("list remote backups: %w", err))
	}

	var backups []Backup
	for _, item := range gjson.ParseBytes(out).Array() {
		if item.Get("IsDir").Bool() {
			continue
		}
		name := item.Get("Name").String()
		if !strings.HasPrefix(name, "notion-export-") || !strings.HasSuffix(name, ".zip") {
			continue
		}
		modified, err := time.Parse(time.RFC3339, item.Get("ModTime").String())
		if err != nil {
			modified = time.Now().UTC()
		}
		backups = append(backups, Backup{
			Name:       name,
			Location:   s.remoteDest() + "/" + name,
			SizeBytes:  item.Get("Size").Int(),
			ModifiedAt: modified.UTC(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModifiedAt.After(backups[j].ModifiedAt)
	})
	return backups, nil
}

func (s *RcloneSink) Cleanup(ctx context.Context, keep int) (int, error) {
	backups, err := s.listRemote(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if _, err := s.rclone(ctx, "delete", b.Location); err != nil {
			s.logger.Warn("failed to remove old backup", "name", b.Name, "error", err)
			continue
		}
		s.logger.Info("removed old backup", "name", b.Name, "size", util.FormatFileSize(b.SizeBytes))
		removed++
	}
	return removed, nil
}

// TestConnection probes the remote with `about`, falling back to
// creating the backup directory when the remote does not support it.
func (s *RcloneSink) TestConnection(ctx context.Context) error {
	if _, err := s.rclone(ctx, "about", s.remote+":"); err == nil {
		return nil
	}
	if _, err := s.rclone(ctx, "mkdir", s.remoteDest()); err != nil {
		return apperrors.ErrStorageFailed("", fmt.Errorf("remote %q not accessible: %w", s.remote, err))
	}
	return nil
}

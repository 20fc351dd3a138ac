// Package backup implements the backup run state machine: drain the
// recovery queue, request one fresh export, poll it to completion,
// download, store, notify. Everything that cannot be confirmed in-run
// lands in the recovery store for a later invocation.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
	"github.com/nikhilbadyal/notion-backup/internal/export"
	"github.com/nikhilbadyal/notion-backup/internal/notify"
	"github.com/nikhilbadyal/notion-backup/internal/recovery"
	"github.com/nikhilbadyal/notion-backup/internal/retry"
	"github.com/nikhilbadyal/notion-backup/internal/storage"
)

// RecoveryQueue is the slice of the recovery store the orchestrator
// needs. Nil means recovery is disabled and deferrable failures become
// fatal.
type RecoveryQueue interface {
	Enqueue(ctx context.Context, jobID, lastError string) error
	FetchPending(ctx context.Context) ([]recovery.Entry, error)
	Ack(ctx context.Context, jobID string) error
	MarkFailedAttempt(ctx context.Context, jobID, lastError string) (int, bool, error)
	Release(ctx context.Context, jobID string) error
}

// Orchestrator runs one backup pass. It holds no cross-run state; all
// memory between invocations lives in the recovery queue.
type Orchestrator struct {
	cfg      *config.Config
	client   export.Service
	sink     storage.Sink
	notifier notify.Sink
	queue    RecoveryQueue
	retry    retry.Config
	logger   *slog.Logger
}

// Result summarizes a completed run for the CLI.
type Result struct {
	JobID    string
	Location string
	// SizeBytes of the stored artifact; 0 when the run produced none.
	SizeBytes int64
	// Recovered counts queue entries resolved during the drain step.
	Recovered int
	// Discarded counts queue entries dropped at the retry threshold.
	Discarded int
	// Deferred is true when the fresh export was handed to the
	// recovery queue instead of completing.
	Deferred bool
	Duration time.Duration
}

// New assembles an orchestrator. queue may be nil (recovery disabled).
func New(cfg *config.Config, client export.Service, sink storage.Sink, notifier notify.Sink, queue RecoveryQueue, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NoopSink{}
	}
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		sink:     sink,
		notifier: notifier,
		queue:    queue,
		retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		logger: logger,
	}
}

// Run executes one full backup pass. A non-nil error means the process
// should exit nonzero; a Deferred result carries such an error too, so
// schedulers notice the run did not complete.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	result := &Result{}

	result.Recovered, result.Discarded = o.drain(ctx)

	jobID, err := o.requestExport(ctx)
	if err != nil {
		// No job exists, so there is nothing to recover.
		o.notifyOutcome(ctx, notify.Event{
			Outcome: notify.OutcomeFailure,
			Message: "export submission failed",
			Err:     err,
		})
		return result, err
	}
	result.JobID = jobID
	o.logger.Info("export job submitted", "job_id", jobID)

	status, err := o.pollUntilResolved(ctx, jobID)
	switch {
	case err != nil:
		// Timeout or poll-retry exhaustion: the remote job may still
		// finish later, so remember it.
		return o.deferToRecovery(ctx, result, jobID, err)
	case status.State == export.StateFailed:
		// A reported failure can still produce a completion signal
		// later; recovery gets the final word on the job.
		return o.deferToRecovery(ctx, result, jobID,
			apperrors.ErrExportFailed(jobID, status.Reason))
	}

	artifact, err := o.fetchArtifact(ctx, jobID, status.ArtifactRef)
	if err != nil {
		return o.deferToRecovery(ctx, result, jobID, err)
	}
	defer artifact.Content.Close()

	location, err := o.sink.Store(ctx, jobID, artifact.Content, storage.Metadata{
		Format:    string(o.cfg.Export.Format),
		Flattened: o.cfg.Export.FlattenFiletree,
		Timestamp: artifact.Timestamp,
		SizeBytes: artifact.SizeBytes,
	})
	if err != nil {
		// The export exists remotely but could not be persisted. Not
		// routed to recovery: re-fetching will not fix a broken sink,
		// and silently continuing would hide a data-integrity problem.
		o.notifyOutcome(ctx, notify.Event{
			Outcome: notify.OutcomeFailure,
			JobID:   jobID,
			Message: "artifact could not be stored",
			Err:     err,
		})
		return result, err
	}

	result.Location = location
	result.SizeBytes = artifact.SizeBytes
	result.Duration = time.Since(started)
	o.logger.Info("backup complete",
		"job_id", jobID, "location", location, "duration", result.Duration.Round(time.Second))

	o.cleanupOldBackups(ctx)

	o.notifyOutcome(ctx, notify.Event{
		Outcome:   notify.OutcomeSuccess,
		JobID:     jobID,
		Location:  location,
		SizeBytes: artifact.SizeBytes,
		Duration:  result.Duration,
	})
	return result, nil
}

func (o *Orchestrator) requestExport(ctx context.Context) (string, error) {
	opts := export.Options{
		Format:          export.Format(o.cfg.Export.Format),
		Flatten:         o.cfg.Export.FlattenFiletree,
		IncludeComments: o.cfg.Export.IncludeComments,
		TimeZone:        o.cfg.Export.TimeZone,
	}

	var jobID string
	err := retry.Do(ctx, o.retry, o.logger, "request export", func() error {
		var reqErr error
		jobID, reqErr = o.client.RequestExport(ctx, opts)
		return reqErr
	})
	if err != nil && apperrors.IsTransient(err) {
		// Retries exhausted without a job ever being created.
		err = apperrors.ErrSubmissionFailed(err)
	}
	return jobID, err
}

// pollUntilResolved checks job status every poll interval until the
// job completes, fails, or the wall-clock ceiling is hit. Hitting the
// ceiling returns an export-timeout error, never a failure: the remote
// job may still be running.
func (o *Orchestrator) pollUntilResolved(ctx context.Context, jobID string) (export.Status, error) {
	interval := o.cfg.Poll.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxWait := o.cfg.Poll.MaxWait
	if maxWait <= 0 {
		maxWait = 20 * time.Minute
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var status export.Status
		err := retry.Do(ctx, o.retry, o.logger, "poll export status", func() error {
			var pollErr error
			status, pollErr = o.client.PollStatus(ctx, jobID)
			return pollErr
		})
		if err != nil {
			return export.Status{}, err
		}

		if status.State != export.StatePending {
			return status, nil
		}

		if time.Now().After(deadline) {
			return export.Status{}, apperrors.ErrExportTimeout(jobID, maxWait.String())
		}

		o.logger.Debug("export still pending", "job_id", jobID)
		select {
		case <-ctx.Done():
			return export.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) fetchArtifact(ctx context.Context, jobID, ref string) (*export.Artifact, error) {
	var artifact *export.Artifact
	err := retry.Do(ctx, o.retry, o.logger, "fetch artifact", func() error {
		var fetchErr error
		artifact, fetchErr = o.client.FetchArtifact(ctx, jobID, ref)
		return fetchErr
	})
	return artifact, err
}

// deferToRecovery writes the unresolved job to the recovery queue and
// ends the run nonzero. Without a queue the failure cannot be
// remembered, so it is fatal outright. Enqueueing happens immediately,
// not at run end, so an external kill cannot lose the job.
func (o *Orchestrator) deferToRecovery(ctx context.Context, result *Result, jobID string, cause error) (*Result, error) {
	if o.queue == nil {
		err := apperrors.ErrRecoveryUnavailable(cause)
		o.logger.Error("export unresolved and no recovery store configured", "job_id", jobID, "error", cause)
		o.notifyOutcome(ctx, notify.Event{
			Outcome: notify.OutcomeFailure,
			JobID:   jobID,
			Message: "export unresolved and recovery is disabled",
			Err:     cause,
		})
		return result, err
	}

	if err := o.queue.Enqueue(ctx, jobID, cause.Error()); err != nil {
		wrapped := apperrors.ErrRecoveryUnavailable(err)
		o.logger.Error("failed to enqueue job for recovery", "job_id", jobID, "error", err)
		o.notifyOutcome(ctx, notify.Event{
			Outcome: notify.OutcomeFailure,
			JobID:   jobID,
			Message: "export unresolved and it could not be queued for recovery",
			Err:     err,
		})
		return result, wrapped
	}

	result.Deferred = true
	o.logger.Warn("export unresolved, queued for recovery on a later run",
		"job_id", jobID, "cause", cause)
	o.notifyOutcome(ctx, notify.Event{
		Outcome: notify.OutcomeWarning,
		JobID:   jobID,
		Message: cause.Error(),
	})
	return result, fmt.Errorf("export deferred to recovery queue: %w", cause)
}

// cleanupOldBackups applies the retention cap after a successful
// store. Failure here never affects the run outcome.
func (o *Orchestrator) cleanupOldBackups(ctx context.Context) {
	keep := o.maxBackups()
	if keep <= 0 {
		return
	}
	removed, err := o.sink.Cleanup(ctx, keep)
	if err != nil {
		o.logger.Warn("backup retention cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		o.logger.Info("retention cleanup removed old backups", "removed", removed, "keep", keep)
	}
}

func (o *Orchestrator) maxBackups() int {
	if o.cfg.Storage.Backend == config.StorageRclone {
		return o.cfg.Storage.Rclone.MaxBackups
	}
	return o.cfg.Storage.Local.MaxBackups
}

// notifyOutcome delivers a best-effort notification, retrying transient
// delivery failures. Exhaustion is logged and swallowed; it never
// changes the run outcome.
func (o *Orchestrator) notifyOutcome(ctx context.Context, event notify.Event) {
	err := retry.Do(ctx, o.retry, o.logger, "send notification", func() error {
		return o.notifier.Send(ctx, event)
	})
	if err != nil {
		o.logger.Warn("notification delivery failed", "outcome", event.Outcome, "error", err)
	}
}

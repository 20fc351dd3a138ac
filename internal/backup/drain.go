package backup

import (
	"context"
	"errors"

	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
	"github.com/nikhilbadyal/notion-backup/internal/export"
	"github.com/nikhilbadyal/notion-backup/internal/notify"
	"github.com/nikhilbadyal/notion-backup/internal/recovery"
	"github.com/nikhilbadyal/notion-backup/internal/retry"
	"github.com/nikhilbadyal/notion-backup/internal/storage"
)

var errNoArtifactRef = errors.New("completion signal carries no artifact reference")

func notifyRecovered(jobID, location string, size int64) notify.Event {
	return notify.Event{
		Outcome:   notify.OutcomeSuccess,
		JobID:     jobID,
		Location:  location,
		SizeBytes: size,
	}
}

// drain processes pending recovery entries, oldest first. A failure in
// one entry never aborts the others, and drain trouble never blocks
// the fresh export that follows.
func (o *Orchestrator) drain(ctx context.Context) (resolved, discarded int) {
	if o.queue == nil {
		return 0, 0
	}

	entries, err := o.queue.FetchPending(ctx)
	if err != nil {
		o.logger.Warn("could not fetch pending recovery entries", "error", err)
		return 0, 0
	}
	if len(entries) == 0 {
		return 0, 0
	}
	o.logger.Info("draining recovery queue", "pending", len(entries))

	var signals []export.CompletionSignal
	err = retry.Do(ctx, o.retry, o.logger, "list completion signals", func() error {
		var listErr error
		signals, listErr = o.client.ListCompletionSignals(ctx)
		return listErr
	})
	if err != nil {
		// The listing itself failed, so nothing was learned about any
		// entry. Release the claims without burning an attempt; the
		// discard threshold is reserved for "queried OK, signal absent
		// or unusable".
		o.logger.Warn("could not list completion signals", "error", err)
		for _, e := range entries {
			if relErr := o.queue.Release(ctx, e.JobID); relErr != nil {
				o.logger.Warn("could not release recovery claim", "job_id", e.JobID, "error", relErr)
			}
		}
		return 0, 0
	}

	byJob := groupSignals(signals)

	for _, entry := range entries {
		if entry.RetryCount >= recovery.DiscardThreshold {
			// The store discards at the threshold, so this only
			// appears with a hand-edited database. Drop it.
			o.logger.Warn("recovery entry past retry threshold, discarding",
				"job_id", entry.JobID, "retry_count", entry.RetryCount)
			if err := o.queue.Ack(ctx, entry.JobID); err != nil {
				o.logger.Warn("could not discard entry", "job_id", entry.JobID, "error", err)
			}
			discarded++
			continue
		}

		matches, ok := byJob[entry.JobID]
		if !ok {
			discarded += o.markFailed(ctx, entry.JobID, "signal not yet available")
			continue
		}

		if err := o.recoverEntry(ctx, entry, matches); err != nil {
			o.logger.Warn("recovery attempt failed",
				"job_id", entry.JobID, "retry_count", entry.RetryCount, "error", err)
			discarded += o.markFailed(ctx, entry.JobID, err.Error())
			continue
		}
		resolved++
	}

	o.logger.Info("recovery drain finished", "resolved", resolved, "discarded", discarded)
	return resolved, discarded
}

// recoverEntry resolves one entry from its completion signals: fetch
// the artifact, store it, ack the queue entry, then acknowledge the
// signals remotely. The queue ack strictly follows the store, so a
// crash in between leaves the entry present and safe to retry.
func (o *Orchestrator) recoverEntry(ctx context.Context, entry recovery.Entry, matches []export.CompletionSignal) error {
	primary := matches[0]
	if primary.ArtifactRef == "" {
		return apperrors.ErrFetchFailed(entry.JobID, errNoArtifactRef)
	}

	artifact, err := o.fetchArtifact(ctx, entry.JobID, primary.ArtifactRef)
	if err != nil {
		return err
	}
	defer artifact.Content.Close()

	location, err := o.sink.Store(ctx, entry.JobID, artifact.Content, storage.Metadata{
		Format:    string(o.cfg.Export.Format),
		Flattened: o.cfg.Export.FlattenFiletree,
		Timestamp: artifact.Timestamp,
		SizeBytes: artifact.SizeBytes,
	})
	if err != nil {
		return err
	}

	if err := o.queue.Ack(ctx, entry.JobID); err != nil {
		// The artifact is stored; a lingering entry only costs a
		// duplicate-store no-op on the next run.
		o.logger.Warn("artifact stored but queue ack failed", "job_id", entry.JobID, "error", err)
	}

	// Duplicate signals for the job are acknowledged without another
	// store; the job's artifact is already persisted.
	for _, sig := range matches {
		ackErr := retry.Do(ctx, o.retry, o.logger, "acknowledge signal", func() error {
			return o.client.AcknowledgeSignal(ctx, sig.SignalID, export.AckOptions{
				MarkRead: true,
				Archive:  true,
			})
		})
		if ackErr != nil {
			o.logger.Warn("could not acknowledge completion signal",
				"job_id", entry.JobID, "signal_id", sig.SignalID, "error", ackErr)
		}
	}

	o.logger.Info("recovered export from completion signal",
		"job_id", entry.JobID, "location", location, "retry_count", entry.RetryCount)

	o.notifyOutcome(ctx, notifyRecovered(entry.JobID, location, artifact.SizeBytes))
	return nil
}

// markFailed records a failed recovery attempt and returns 1 when the
// entry hit the discard threshold, 0 otherwise.
func (o *Orchestrator) markFailed(ctx context.Context, jobID, reason string) int {
	count, wasDiscarded, err := o.queue.MarkFailedAttempt(ctx, jobID, reason)
	if err != nil {
		o.logger.Warn("could not record failed recovery attempt", "job_id", jobID, "error", err)
		return 0
	}
	if wasDiscarded {
		o.logger.Warn("recovery attempts exhausted, giving up on export",
			"job_id", jobID, "attempts", count,
			"error", apperrors.ErrRecoveryExhausted(jobID, count))
		return 1
	}
	o.logger.Info("recovery attempt recorded", "job_id", jobID, "retry_count", count)
	return 0
}

// groupSignals indexes signals by job, earliest receivedAt first, so
// duplicate deliveries resolve deterministically.
func groupSignals(signals []export.CompletionSignal) map[string][]export.CompletionSignal {
	byJob := make(map[string][]export.CompletionSignal)
	for _, sig := range signals {
		matches := byJob[sig.JobID]
		i := len(matches)
		for i > 0 && sig.ReceivedAt.Before(matches[i-1].ReceivedAt) {
			i--
		}
		matches = append(matches, export.CompletionSignal{})
		copy(matches[i+1:], matches[i:])
		matches[i] = sig
		byJob[sig.JobID] = matches
	}
	return byJob
}

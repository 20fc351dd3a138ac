package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DryRunClient is a stand-in Service that never contacts the remote
// export API. Submitted jobs complete immediately with a small
// placeholder archive, so the rest of the pipeline (storage, recovery,
// notifications) can be exercised without credentials or side effects
// on the workspace.
type DryRunClient struct {
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]Options
}

// NewDryRunClient builds a dry-run export service.
func NewDryRunClient(logger *slog.Logger) *DryRunClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunClient{
		logger: logger,
		jobs:   make(map[string]Options),
	}
}

func (d *DryRunClient) RequestExport(_ context.Context, opts Options) (string, error) {
	jobID := "dry-run-" + uuid.NewString()
	d.mu.Lock()
	d.jobs[jobID] = opts
	d.mu.Unlock()
	d.logger.Info("dry run: export request simulated", "job_id", jobID, "format", opts.Format)
	return jobID, nil
}

func (d *DryRunClient) PollStatus(_ context.Context, jobID string) (Status, error) {
	d.mu.Lock()
	_, known := d.jobs[jobID]
	d.mu.Unlock()
	if !known {
		return Status{State: StateFailed, Reason: "unknown dry-run job"}, nil
	}
	return Status{State: StateComplete, ArtifactRef: "dry-run://" + jobID}, nil
}

func (d *DryRunClient) FetchArtifact(_ context.Context, jobID, _ string) (*Artifact, error) {
	payload, err := placeholderArchive(jobID)
	if err != nil {
		return nil, fmt.Errorf("build dry-run archive: %w", err)
	}
	return &Artifact{
		JobID:     jobID,
		SizeBytes: int64(len(payload)),
		Timestamp: time.Now().UTC(),
		Content:   io.NopCloser(bytes.NewReader(payload)),
	}, nil
}

// ListCompletionSignals always returns nothing: a dry run has no real
// history to recover against.
func (d *DryRunClient) ListCompletionSignals(context.Context) ([]CompletionSignal, error) {
	return nil, nil
}

func (d *DryRunClient) AcknowledgeSignal(_ context.Context, signalID string, _ AckOptions) error {
	d.logger.Debug("dry run: signal acknowledgement skipped", "signal_id", signalID)
	return nil
}

// placeholderArchive produces a minimal valid zip so downstream storage
// handling sees a realistic payload.
func placeholderArchive(jobID string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("README.txt")
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "Dry-run export placeholder for job %s.\nNo workspace data was exported.\n", jobID)
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

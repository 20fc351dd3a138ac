package export

import (
	"context"
	"io"
	"time"
)

// Format selects the document format of an export.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Options are the per-job export settings sent with a submission.
type Options struct {
	Format          Format
	Flatten         bool
	IncludeComments bool
	TimeZone        string
}

// Job is a submitted export job. Identity is the remote-assigned ID;
// the struct is immutable after submission.
type Job struct {
	ID          string
	RequestedAt time.Time
	Options     Options
}

// State is the remote-reported status of an export job.
type State int

const (
	StatePending State = iota
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the result of a single non-blocking status check.
// ArtifactRef is set only when State is StateComplete; Reason only
// when StateFailed.
type Status struct {
	State       State
	ArtifactRef string
	Reason      string
}

// CompletionSignal is an asynchronous confirmation that a job finished,
// enumerable independently of the original submission. SignalID is the
// remote notification record used for acknowledgement.
type CompletionSignal struct {
	SignalID    string
	JobID       string
	ArtifactRef string
	ReceivedAt  time.Time
}

// Artifact is a fetched export payload. Content must be closed by the
// consumer; it exists only between fetch and hand-off to storage.
type Artifact struct {
	JobID     string
	SizeBytes int64
	Timestamp time.Time
	Content   io.ReadCloser
}

// AckOptions controls remote-side housekeeping for a consumed signal.
type AckOptions struct {
	MarkRead bool
	Archive  bool
}

// Service is the remote export surface the orchestrator depends on.
// It is the system of record for job state; callers never guess remote
// state, they ask.
type Service interface {
	// RequestExport submits a new export job and returns its remote ID.
	RequestExport(ctx context.Context, opts Options) (string, error)

	// PollStatus performs one status check. It never loops or sleeps;
	// polling cadence belongs to the caller.
	PollStatus(ctx context.Context, jobID string) (Status, error)

	// FetchArtifact retrieves the produced payload for a completed job.
	FetchArtifact(ctx context.Context, jobID, artifactRef string) (*Artifact, error)

	// ListCompletionSignals enumerates the signals the remote side
	// currently holds. Each call reflects current server state.
	ListCompletionSignals(ctx context.Context) ([]CompletionSignal, error)

	// AcknowledgeSignal marks a consumed signal read and/or archived.
	// Best effort; callers must not abort a run on failure.
	AcknowledgeSignal(ctx context.Context, signalID string, opts AckOptions) error
}

// ParseFormat validates a configuration string as an export format.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatMarkdown, FormatHTML:
		return Format(s), true
	default:
		return "", false
	}
}

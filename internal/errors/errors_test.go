package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestBackupError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *BackupError
		want string
	}{
		{
			name: "what only",
			err:  &BackupError{What: "something broke"},
			want: "something broke",
		},
		{
			name: "what and why",
			err:  &BackupError{What: "something broke", Why: "disk full"},
			want: "something broke: disk full",
		},
		{
			name: "what, why and cause",
			err:  &BackupError{What: "something broke", Why: "disk full", Cause: stderrors.New("ENOSPC")},
			want: "something broke: disk full: ENOSPC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackupError_Is(t *testing.T) {
	err := ErrExportTimeout("J1", "20m")
	if !stderrors.Is(err, &BackupError{Code: CodeExportTimeout}) {
		t.Error("expected Is to match on code")
	}
	if stderrors.Is(err, &BackupError{Code: CodeStorageFailed}) {
		t.Error("expected Is to reject a different code")
	}
}

func TestBackupError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ErrSubmissionFailed(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(ErrRateLimited("enqueueTask")); got != CodeRateLimited {
		t.Errorf("CodeOf = %q, want %q", got, CodeRateLimited)
	}
	if got := CodeOf(stderrors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	wrapped := fmt.Errorf("outer: %w", ErrStorageFailed("J1", nil))
	if got := CodeOf(wrapped); got != CodeStorageFailed {
		t.Errorf("CodeOf(wrapped) = %q, want %q", got, CodeStorageFailed)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", ErrRateLimited("getTasks"), true},
		{"network", ErrNetwork("getTasks", stderrors.New("reset")), true},
		{"notify delivery", ErrNotifyFailed(stderrors.New("service offline")), true},
		{"timeout is not transient", ErrExportTimeout("J1", "20m"), false},
		{"storage is not transient", ErrStorageFailed("J1", nil), false},
		{"net.Error counts", &net.DNSError{IsTimeout: true}, true},
		{"plain error does not", stderrors.New("nope"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(ErrExportTimeout("J1", "20m")) {
		t.Error("timeout should be recoverable")
	}
	if !IsRecoverable(ErrFetchFailed("J1", stderrors.New("404"))) {
		t.Error("fetch failure should be recoverable")
	}
	if IsRecoverable(ErrSubmissionFailed(nil)) {
		t.Error("submission failure should not be recoverable")
	}
}

func TestUserMessage(t *testing.T) {
	msg := ErrSubmissionFailed(nil).UserMessage()
	if !strings.HasPrefix(msg, "Error: ") {
		t.Errorf("UserMessage should start with Error:, got %q", msg)
	}
	if !strings.Contains(msg, "Fix:") {
		t.Errorf("UserMessage should include the fix, got %q", msg)
	}
}

// Package errors provides structured error types for notion-backup.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for notion-backup.
const (
	// Export errors
	CodeSubmissionFailed Code = "SUBMISSION_FAILED"
	CodeExportFailed     Code = "EXPORT_FAILED"
	CodeExportTimeout    Code = "EXPORT_TIMEOUT"
	CodeFetchFailed      Code = "FETCH_FAILED"

	// Transient transport errors
	CodeRateLimited Code = "RATE_LIMITED"
	CodeNetwork     Code = "NETWORK"

	// Storage and notification errors
	CodeStorageFailed Code = "STORAGE_FAILED"
	CodeNotifyFailed  Code = "NOTIFY_FAILED"

	// Recovery errors
	CodeRecoveryUnavailable Code = "RECOVERY_UNAVAILABLE"
	CodeRecoveryExhausted   Code = "RECOVERY_EXHAUSTED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// Category groups error codes by how the orchestrator reacts to them.
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryFatal ends the run with a nonzero exit; nothing to recover.
	CategoryFatal
	// CategoryTransient is retried with backoff within the current attempt.
	CategoryTransient
	// CategoryRecoverable routes to the recovery queue for a later run.
	CategoryRecoverable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeSubmissionFailed:    CategoryFatal,
	CodeExportFailed:        CategoryRecoverable,
	CodeExportTimeout:       CategoryRecoverable,
	CodeFetchFailed:         CategoryRecoverable,
	CodeRateLimited:         CategoryTransient,
	CodeNetwork:             CategoryTransient,
	CodeStorageFailed:       CategoryFatal,
	CodeNotifyFailed:        CategoryTransient, // delivery is network-bound, never escalated
	CodeRecoveryUnavailable: CategoryFatal,
	CodeRecoveryExhausted:   CategoryUnknown,
	CodeConfigInvalid:       CategoryFatal,
	CodeConfigMissing:       CategoryFatal,
}

// BackupError is the structured error type for notion-backup.
type BackupError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *BackupError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *BackupError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *BackupError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *BackupError) MarshalJSON() ([]byte, error) {
	type alias BackupError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a BackupError with the same code.
func (e *BackupError) Is(target error) bool {
	t, ok := target.(*BackupError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *BackupError) WithCause(err error) *BackupError {
	return &BackupError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// CodeOf extracts the error code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var be *BackupError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsTransient reports whether err is worth retrying within the current
// attempt window. Network-level failures count even without a code.
func IsTransient(err error) bool {
	var be *BackupError
	if errors.As(err, &be) {
		return be.Category() == CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsRecoverable reports whether err should route to the recovery queue
// rather than failing the run outright.
func IsRecoverable(err error) bool {
	var be *BackupError
	if errors.As(err, &be) {
		return be.Category() == CategoryRecoverable
	}
	return false
}

// --- Error constructors ---

// ErrSubmissionFailed returns an error for a failed export submission.
func ErrSubmissionFailed(cause error) *BackupError {
	return &BackupError{
		Code:  CodeSubmissionFailed,
		What:  "could not submit export job",
		Why:   "The export service rejected the submission, so no job exists to recover",
		Fix:   "Check space_id and token_v2, then run the backup again",
		Cause: cause,
	}
}

// ErrExportFailed returns an error for an export the service reported as failed.
func ErrExportFailed(jobID, reason string) *BackupError {
	return &BackupError{
		Code: CodeExportFailed,
		What: fmt.Sprintf("export job %s failed", jobID),
		Why:  reason,
	}
}

// ErrExportTimeout returns an error for an export that did not confirm in time.
func ErrExportTimeout(jobID string, waited string) *BackupError {
	return &BackupError{
		Code: CodeExportTimeout,
		What: fmt.Sprintf("export job %s did not complete within %s", jobID, waited),
		Why:  "The remote job may still be running; it is queued for recovery on the next run",
	}
}

// ErrFetchFailed returns an error for a failed artifact download.
func ErrFetchFailed(jobID string, cause error) *BackupError {
	return &BackupError{
		Code:  CodeFetchFailed,
		What:  fmt.Sprintf("could not download artifact for job %s", jobID),
		Cause: cause,
	}
}

// ErrRateLimited returns an error for an HTTP 429 response.
func ErrRateLimited(endpoint string) *BackupError {
	return &BackupError{
		Code: CodeRateLimited,
		What: "export service rate limit exceeded",
		Why:  fmt.Sprintf("HTTP 429 from %s", endpoint),
		Fix:  "Reduce backup frequency or wait before retrying",
	}
}

// ErrNetwork returns an error for a transport-level failure.
func ErrNetwork(endpoint string, cause error) *BackupError {
	return &BackupError{
		Code:  CodeNetwork,
		What:  fmt.Sprintf("request to %s failed", endpoint),
		Cause: cause,
	}
}

// ErrStorageFailed returns an error for a failed artifact store.
func ErrStorageFailed(jobID string, cause error) *BackupError {
	return &BackupError{
		Code:  CodeStorageFailed,
		What:  fmt.Sprintf("could not store artifact for job %s", jobID),
		Why:   "The export exists remotely but was not persisted locally",
		Fix:   "Check the storage backend configuration and free space, then run the backup again",
		Cause: cause,
	}
}

// ErrNotifyFailed returns an error for a failed notification delivery.
func ErrNotifyFailed(cause error) *BackupError {
	return &BackupError{
		Code:  CodeNotifyFailed,
		What:  "could not deliver notification",
		Cause: cause,
	}
}

// ErrRecoveryUnavailable returns an error when the recovery store cannot be reached.
func ErrRecoveryUnavailable(cause error) *BackupError {
	return &BackupError{
		Code:  CodeRecoveryUnavailable,
		What:  "recovery store is not available",
		Why:   "Unconfirmed export jobs cannot be remembered for a later run",
		Fix:   "Check the recovery.dsn setting, or set it to 'off' to disable recovery",
		Cause: cause,
	}
}

// ErrRecoveryExhausted returns an error for an entry that hit the discard threshold.
func ErrRecoveryExhausted(jobID string, attempts int) *BackupError {
	return &BackupError{
		Code: CodeRecoveryExhausted,
		What: fmt.Sprintf("giving up on export job %s after %d recovery attempts", jobID, attempts),
		Why:  "No completion signal appeared for the job across consecutive runs",
	}
}

// ErrConfigMissing returns an error for a missing required setting.
func ErrConfigMissing(field string) *BackupError {
	return &BackupError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("required setting %q is not set", field),
		Fix:  fmt.Sprintf("Set %s in the config file or via the NOTION_BACKUP_%s environment variable", field, strings.ToUpper(strings.ReplaceAll(field, ".", "_"))),
	}
}

// ErrConfigInvalid returns an error for an invalid setting value.
func ErrConfigInvalid(field, why string) *BackupError {
	return &BackupError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("setting %q is invalid", field),
		Why:  why,
	}
}

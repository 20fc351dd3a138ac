// Package notify delivers best-effort run-outcome notifications.
// Delivery failure is never fatal to a backup run; callers log and
// move on.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// Outcome classifies a finished run for notification purposes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// Event is one run outcome to deliver.
type Event struct {
	Outcome  Outcome
	JobID    string
	Message  string
	Location string
	// SizeBytes of the stored artifact; 0 when no artifact exists.
	SizeBytes int64
	Duration  time.Duration
	Err       error
}

// Sink attempts delivery of an event.
type Sink interface {
	Send(ctx context.Context, event Event) error
	TestConnection(ctx context.Context) error
}

// wantOutcome decides whether the configured level covers an outcome.
func wantOutcome(level config.NotifyLevel, outcome Outcome) bool {
	switch level {
	case config.NotifyNone:
		return false
	case config.NotifySuccess:
		return outcome == OutcomeSuccess
	case config.NotifyError:
		return outcome == OutcomeFailure || outcome == OutcomeWarning
	default:
		return true
	}
}

// FormatBody renders the default notification text for an event.
func FormatBody(event Event) string {
	switch event.Outcome {
	case OutcomeSuccess:
		body := "Backup completed successfully"
		if event.Location != "" {
			body += "\nLocation: " + event.Location
		}
		if event.SizeBytes > 0 {
			body += "\nSize: " + util.FormatFileSize(event.SizeBytes)
		}
		if event.Duration > 0 {
			body += fmt.Sprintf("\nDuration: %s", event.Duration.Round(time.Second))
		}
		return body
	case OutcomeWarning:
		body := "Backup deferred: " + event.Message
		if event.JobID != "" {
			body += "\nJob: " + event.JobID
		}
		return body
	default:
		body := "Backup failed"
		if event.Message != "" {
			body += ": " + event.Message
		}
		if event.Err != nil {
			body += "\nError: " + event.Err.Error()
		}
		return body
	}
}

// Notification service URLs embed credentials (tokens, webhook
// secrets); these patterns blank the secret segments before a URL is
// ever logged.
var maskPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(telegram://|tgram://)[^@/]{8,}([@/])`), "${1}****${2}"},
	{regexp.MustCompile(`(discord://[^@/]+[@/])[^@/]{8,}`), "${1}****"},
	{regexp.MustCompile(`(://[^:/@]+:)[^@]{4,}(@)`), "${1}****${2}"},
	{regexp.MustCompile(`(://[^:/@]{4})[^:/@]{4,}([^:/@]{4})`), "${1}****${2}"},
}

// MaskURL hides credential segments of a notification URL for logging.
func MaskURL(url string) string {
	masked := url
	for _, p := range maskPatterns {
		masked = p.re.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

// MaskURLs masks a list of URLs.
func MaskURLs(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = MaskURL(u)
	}
	return out
}

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
)

const (
	enqueueTaskPath     = "/api/v3/enqueueTask"
	getTasksPath        = "/api/v3/getTasks"
	notificationLogPath = "/api/v3/getNotificationLogV2"
	notificationAckPath = "/api/v3/updateNotificationReadState"

	tokenV2Cookie   = "token_v2"
	fileTokenCookie = "file_token"

	defaultBaseURL = "https://www.notion.so"
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:139.0) Gecko/20100101 Firefox/139.0"
)

// ClientConfig holds the credentials and endpoints for the export service.
type ClientConfig struct {
	// BaseURL overrides the service endpoint. Empty means production.
	BaseURL string
	// SpaceID is the workspace to export.
	SpaceID string
	// TokenV2 is the session cookie used on API calls.
	TokenV2 string
	// FileToken is the cookie required to download produced artifacts.
	// Optional; some workspaces serve artifacts without it.
	FileToken string
	// RequestTimeout bounds individual API calls.
	RequestTimeout time.Duration
	// DownloadTimeout bounds the artifact fetch, which moves real bytes.
	DownloadTimeout time.Duration
}

// Client talks to the remote workspace export API. It implements
// Service; all methods are single calls with no internal retry or
// polling loops.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	download *http.Client
	logger   *slog.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.SpaceID == "" {
		return nil, apperrors.ErrConfigMissing("space_id")
	}
	if cfg.TokenV2 == "" {
		return nil, apperrors.ErrConfigMissing("token_v2")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		download: &http.Client{Timeout: cfg.DownloadTimeout},
		logger:   logger,
	}, nil
}

// RequestExport submits a workspace export job and returns the
// remote-assigned task ID.
func (c *Client) RequestExport(ctx context.Context, opts Options) (string, error) {
	tz := opts.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	payload := map[string]any{
		"task": map[string]any{
			"eventName": "exportSpace",
			"request": map[string]any{
				"spaceId": c.cfg.SpaceID,
				"exportOptions": map[string]any{
					"exportType":               string(opts.Format),
					"timeZone":                 tz,
					"locale":                   "en",
					"collectionViewExportType": "currentView",
					"flattenExportFiletree":    opts.Flatten,
				},
				"recursive":            true,
				"shouldExportComments": opts.IncludeComments,
			},
		},
	}

	body, err := c.postJSON(ctx, enqueueTaskPath, payload)
	if err != nil {
		// Rate limits and transport blips stay transient so the caller
		// can retry the submission; anything else means the service
		// rejected it.
		if apperrors.IsTransient(err) {
			return "", err
		}
		return "", apperrors.ErrSubmissionFailed(err)
	}

	taskID := gjson.GetBytes(body, "taskId").String()
	if taskID == "" {
		return "", apperrors.ErrSubmissionFailed(
			fmt.Errorf("export service accepted the request but returned no task ID"))
	}

	c.logger.Debug("export task submitted", "job_id", taskID)
	return taskID, nil
}

// PollStatus performs one status check against the task API.
func (c *Client) PollStatus(ctx context.Context, jobID string) (Status, error) {
	body, err := c.postJSON(ctx, getTasksPath, map[string]any{
		"taskIds": []string{jobID},
	})
	if err != nil {
		return Status{}, err
	}

	result := gjson.GetBytes(body, "results.0")
	if !result.Exists() {
		return Status{}, apperrors.ErrExportFailed(jobID, "task not found on the export service")
	}

	switch state := result.Get("state").String(); state {
	case "success":
		ref := result.Get("status.exportURL").String()
		if ref == "" {
			return Status{}, apperrors.ErrExportFailed(jobID, "task succeeded but no artifact URL was reported")
		}
		return Status{State: StateComplete, ArtifactRef: ref}, nil
	case "failure":
		reason := result.Get("error").String()
		if reason == "" {
			reason = "export service reported failure without detail"
		}
		return Status{State: StateFailed, Reason: reason}, nil
	default:
		// "not_started" and "in_progress" both mean keep waiting.
		return Status{State: StatePending}, nil
	}
}

// FetchArtifact downloads the produced archive. The returned artifact's
// Content must be closed by the caller.
func (c *Client) FetchArtifact(ctx context.Context, jobID, artifactRef string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactRef, nil)
	if err != nil {
		return nil, apperrors.ErrFetchFailed(jobID, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.FileToken != "" {
		req.AddCookie(&http.Cookie{Name: fileTokenCookie, Value: c.cfg.FileToken})
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, apperrors.ErrNetwork("artifact download", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, apperrors.ErrRateLimited("artifact download")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperrors.ErrFetchFailed(jobID,
			fmt.Errorf("download returned HTTP %d", resp.StatusCode))
	}

	c.logger.Debug("artifact download started",
		"job_id", jobID, "content_length", resp.ContentLength)

	return &Artifact{
		JobID:     jobID,
		SizeBytes: resp.ContentLength,
		Timestamp: time.Now().UTC(),
		Content:   resp.Body,
	}, nil
}

// ListCompletionSignals enumerates export-completed notifications for
// the configured workspace. Each call re-queries the server.
func (c *Client) ListCompletionSignals(ctx context.Context) ([]CompletionSignal, error) {
	body, err := c.postJSON(ctx, notificationLogPath, map[string]any{
		"spaceId": c.cfg.SpaceID,
		"size":    20,
		"type":    "unread_and_read",
		"variant": "no_grouping",
	})
	if err != nil {
		return nil, err
	}

	var signals []CompletionSignal
	gjson.GetBytes(body, "recordMap.activity").ForEach(func(_, record gjson.Result) bool {
		value := record.Get("value")
		if value.Get("type").String() != "export-completed" {
			return true
		}
		jobID := value.Get("task_id").String()
		if jobID == "" {
			// Historical entries from other tooling may lack a task
			// reference; they cannot be matched, so skip them.
			return true
		}
		signals = append(signals, CompletionSignal{
			SignalID:    value.Get("id").String(),
			JobID:       jobID,
			ArtifactRef: value.Get("edits.0.link").String(),
			ReceivedAt:  time.UnixMilli(value.Get("start_time").Int()).UTC(),
		})
		return true
	})

	c.logger.Debug("completion signals listed", "count", len(signals))
	return signals, nil
}

// AcknowledgeSignal marks a notification read and/or archived. The
// caller treats failure as housekeeping noise, never as a run failure.
func (c *Client) AcknowledgeSignal(ctx context.Context, signalID string, opts AckOptions) error {
	if signalID == "" {
		return nil
	}
	_, err := c.postJSON(ctx, notificationAckPath, map[string]any{
		"notificationId": signalID,
		"read":           opts.MarkRead,
		"archived":       opts.Archive,
	})
	return err
}

// postJSON issues an authenticated POST and returns the response body.
// 429 responses map to a rate-limit error; other non-200 responses to a
// network error, both classified transient.
func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.AddCookie(&http.Cookie{Name: tokenV2Cookie, Value: c.cfg.TokenV2})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ErrNetwork(path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.ErrRateLimited(path)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.ErrNetwork(path,
			fmt.Errorf("export service returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ErrNetwork(path, err)
	}
	return body, nil
}

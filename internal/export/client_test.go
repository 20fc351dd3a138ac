package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		SpaceID:   "space1",
		TokenV2:   "tok",
		FileToken: "ftok",
	}, nil)
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ClientConfig{TokenV2: "tok"}, nil)
	assert.Equal(t, apperrors.CodeConfigMissing, apperrors.CodeOf(err))

	_, err = NewClient(ClientConfig{SpaceID: "space1"}, nil)
	assert.Equal(t, apperrors.CodeConfigMissing, apperrors.CodeOf(err))
}

func TestRequestExport(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, enqueueTaskPath, r.URL.Path)

		cookie, err := r.Cookie(tokenV2Cookie)
		require.NoError(t, err)
		assert.Equal(t, "tok", cookie.Value)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"taskId":"J1"}`))
	}))

	jobID, err := client.RequestExport(context.Background(), Options{
		Format:          FormatMarkdown,
		Flatten:         true,
		IncludeComments: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "J1", jobID)

	task := gotBody["task"].(map[string]any)
	request := task["request"].(map[string]any)
	assert.Equal(t, "exportSpace", task["eventName"])
	assert.Equal(t, "space1", request["spaceId"])

	exportOpts := request["exportOptions"].(map[string]any)
	assert.Equal(t, "markdown", exportOpts["exportType"])
	assert.Equal(t, true, exportOpts["flattenExportFiletree"])
}

func TestRequestExport_NoTaskID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := client.RequestExport(context.Background(), Options{Format: FormatMarkdown})
	assert.Equal(t, apperrors.CodeSubmissionFailed, apperrors.CodeOf(err))
}

func TestRequestExport_ServerErrorStaysTransient(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.RequestExport(context.Background(), Options{Format: FormatMarkdown})
	assert.Equal(t, apperrors.CodeNetwork, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsTransient(err), "a transport blip during submission is retryable")
}

func TestRequestExport_RateLimited(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.RequestExport(context.Background(), Options{Format: FormatMarkdown})
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsTransient(err))
}

func TestPollStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		response  string
		wantState State
		wantRef   string
		wantErr   apperrors.Code
	}{
		{
			name:      "pending",
			response:  `{"results":[{"state":"in_progress"}]}`,
			wantState: StatePending,
		},
		{
			name:      "not started",
			response:  `{"results":[{"state":"not_started"}]}`,
			wantState: StatePending,
		},
		{
			name:      "complete",
			response:  `{"results":[{"state":"success","status":{"exportURL":"https://files.example/a.zip"}}]}`,
			wantState: StateComplete,
			wantRef:   "https://files.example/a.zip",
		},
		{
			name:      "failed",
			response:  `{"results":[{"state":"failure","error":"workspace too large"}]}`,
			wantState: StateFailed,
		},
		{
			name:     "success without artifact URL",
			response: `{"results":[{"state":"success"}]}`,
			wantErr:  apperrors.CodeExportFailed,
		},
		{
			name:     "unknown task",
			response: `{"results":[]}`,
			wantErr:  apperrors.CodeExportFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, getTasksPath, r.URL.Path)
				_, _ = w.Write([]byte(tt.response))
			}))

			status, err := client.PollStatus(context.Background(), "J1")
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, status.State)
			assert.Equal(t, tt.wantRef, status.ArtifactRef)
		})
	}
}

func TestFetchArtifact(t *testing.T) {
	t.Parallel()

	payload := []byte("zip bytes here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(fileTokenCookie)
		require.NoError(t, err)
		assert.Equal(t, "ftok", cookie.Value)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, http.NotFoundHandler())

	artifact, err := client.FetchArtifact(context.Background(), "J1", srv.URL+"/export.zip")
	require.NoError(t, err)
	defer artifact.Content.Close()

	assert.Equal(t, "J1", artifact.JobID)
	assert.Equal(t, int64(len(payload)), artifact.SizeBytes)

	got, err := io.ReadAll(artifact.Content)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchArtifact_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.FetchArtifact(context.Background(), "J1", srv.URL+"/export.zip")
	assert.Equal(t, apperrors.CodeFetchFailed, apperrors.CodeOf(err))
}

func TestListCompletionSignals(t *testing.T) {
	t.Parallel()

	response := `{
		"recordMap": {
			"activity": {
				"a1": {"value": {"id": "a1", "type": "export-completed", "task_id": "J1",
					"start_time": 1756400000000, "edits": [{"link": "https://files.example/j1.zip"}]}},
				"a2": {"value": {"id": "a2", "type": "comment-added"}},
				"a3": {"value": {"id": "a3", "type": "export-completed", "start_time": 1756400100000,
					"edits": [{"link": "https://files.example/old.zip"}]}}
			}
		}
	}`

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, notificationLogPath, r.URL.Path)
		_, _ = w.Write([]byte(response))
	}))

	signals, err := client.ListCompletionSignals(context.Background())
	require.NoError(t, err)

	// a2 is not an export signal, a3 carries no task reference.
	require.Len(t, signals, 1)
	assert.Equal(t, "a1", signals[0].SignalID)
	assert.Equal(t, "J1", signals[0].JobID)
	assert.Equal(t, "https://files.example/j1.zip", signals[0].ArtifactRef)
	assert.Equal(t, time.UnixMilli(1756400000000).UTC(), signals[0].ReceivedAt)
}

func TestAcknowledgeSignal(t *testing.T) {
	t.Parallel()

	var acked map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, notificationAckPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&acked))
		_, _ = w.Write([]byte(`{}`))
	}))

	err := client.AcknowledgeSignal(context.Background(), "a1", AckOptions{MarkRead: true, Archive: true})
	require.NoError(t, err)
	assert.Equal(t, "a1", acked["notificationId"])
	assert.Equal(t, true, acked["read"])
	assert.Equal(t, true, acked["archived"])
}

func TestDryRunClient_FullCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := NewDryRunClient(nil)

	jobID, err := client.RequestExport(ctx, Options{Format: FormatMarkdown})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	status, err := client.PollStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, status.State)

	artifact, err := client.FetchArtifact(ctx, jobID, status.ArtifactRef)
	require.NoError(t, err)
	defer artifact.Content.Close()

	data, err := io.ReadAll(artifact.Content)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), artifact.SizeBytes)

	// The placeholder must be a readable zip.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.NotEmpty(t, zr.File)

	signals, err := client.ListCompletionSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

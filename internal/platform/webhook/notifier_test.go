package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/platform/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), "Ship release", "", domain.QuadrantDoFirst, nil)
	require.NoError(t, err)
	task.Completed = true
	return task
}

func TestNewNotifierValidation(t *testing.T) {
	_, err := webhook.NewNotifier("", discardLogger())
	assert.Error(t, err)

	_, err = webhook.NewNotifier("http://example.com/hook", nil)
	assert.Error(t, err)
}

func TestTaskCompletedPostsEvent(t *testing.T) {
	var received webhook.Event
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier, err := webhook.NewNotifier(server.URL, discardLogger())
	require.NoError(t, err)

	task := sampleTask(t)
	require.NoError(t, notifier.TaskCompleted(context.Background(), task))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "task.completed", received.Type)
	require.NotNil(t, received.Task)
	assert.Equal(t, task.ID, received.Task.ID)
	assert.True(t, received.Task.Completed)
	assert.WithinDuration(t, time.Now().UTC(), received.OccurredAt, time.Minute)
}

func TestTaskCompletedRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier, err := webhook.NewNotifier(server.URL, discardLogger())
	require.NoError(t, err)

	err = notifier.TaskCompleted(context.Background(), sampleTask(t))
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
}

func TestTaskCompletedReportsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	notifier, err := webhook.NewNotifier(server.URL, discardLogger())
	require.NoError(t, err)

	err = notifier.TaskCompleted(context.Background(), sampleTask(t))
	assert.Error(t, err)
}

// Package webhook delivers task lifecycle events to an external HTTP
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/matrix-api/internal/domain"
)

// ErrDeliveryFailed wraps non-2xx responses from the receiving endpoint.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Event is the JSON payload posted to the configured endpoint.
type Event struct {
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Task       *domain.Task `json:"task"`
}

// Notifier posts task events to a single configured URL. The caller is
// expected to invoke Send through a circuit breaker; no retries happen
// here.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier posting to the given URL.
func NewNotifier(url string, logger *slog.Logger) (*Notifier, error) {
	if url == "" {
		return nil, errors.New("webhook URL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(slog.String("component", "webhook_notifier")),
	}, nil
}

// TaskCompleted posts a task.completed event for the given task.
func (n *Notifier) TaskCompleted(ctx context.Context, task *domain.Task) error {
	return n.send(ctx, Event{
		Type:       "task.completed",
		OccurredAt: time.Now().UTC(),
		Task:       task,
	})
}

func (n *Notifier) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: endpoint returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	n.logger.Debug("webhook event delivered",
		slog.String("type", event.Type),
		slog.String("task_id", event.Task.ID.String()))
	return nil
}

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/matrix-api/internal/config"
	"github.com/phrazzld/matrix-api/internal/domain"
	"google.golang.org/genai"
)

// Suggestion is one per-task prioritization proposal from the model.
type Suggestion struct {
	TaskID   uuid.UUID       `json:"task_id"`
	Quadrant domain.Quadrant `json:"quadrant"`
	Reason   string          `json:"reason,omitempty"`
}

// Suggester sends task batches to the Gemini API and parses quadrant
// suggestions out of the response.
type Suggester struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewSuggester creates a Suggester with the provided dependencies.
func NewSuggester(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Suggester, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Suggester{
		logger: logger.With(slog.String("component", "gemini_suggester")),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Suggest asks the model to place each task into a quadrant. The caller is
// expected to invoke this through a circuit breaker; no retries happen
// here.
func (s *Suggester) Suggest(ctx context.Context, tasks []*domain.Task) ([]Suggestion, error) {
	prompt, err := buildPrompt(tasks)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("requesting prioritization suggestions",
		slog.Int("task_count", len(tasks)),
		slog.String("model", s.model))

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	suggestions, err := parseSuggestions(resp.Text())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("received prioritization suggestions",
		slog.Int("suggestion_count", len(suggestions)))
	return suggestions, nil
}

// buildPrompt renders the task batch into the instruction the model
// responds to with a JSON array.
func buildPrompt(tasks []*domain.Task) (string, error) {
	if len(tasks) == 0 {
		return "", ErrNoTasks
	}

	var b strings.Builder
	b.WriteString("You are prioritizing tasks into an Eisenhower matrix.\n")
	b.WriteString("Quadrants: q1 = urgent and important, q2 = important not urgent, ")
	b.WriteString("q3 = urgent not important, q4 = neither.\n")
	b.WriteString("For each task below, respond with a JSON array of objects ")
	b.WriteString(`{"task_id": "<uuid>", "quadrant": "q1".."q4", "reason": "<short reason>"}.` + "\n")
	b.WriteString("Respond with the JSON array only, no prose.\n\nTasks:\n")

	for _, task := range tasks {
		b.WriteString("- id: ")
		b.WriteString(task.ID.String())
		b.WriteString(", title: ")
		b.WriteString(quote(task.Title))
		if task.Description != "" {
			b.WriteString(", description: ")
			b.WriteString(quote(task.Description))
		}
		if task.DueDate != nil {
			b.WriteString(", due: ")
			b.WriteString(task.DueDate.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// quote quotes a user-supplied string so newlines cannot break the
// prompt's line structure.
func quote(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

// parseSuggestions decodes the model output, tolerating a markdown code
// fence around the JSON array.
func parseSuggestions(text string) ([]Suggestion, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(cleaned), &suggestions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	for _, suggestion := range suggestions {
		if suggestion.TaskID == uuid.Nil {
			return nil, fmt.Errorf("%w: suggestion missing task_id", ErrInvalidResponse)
		}
		if !suggestion.Quadrant.Valid() {
			return nil, fmt.Errorf("%w: invalid quadrant %q", ErrInvalidResponse, suggestion.Quadrant)
		}
	}

	return suggestions, nil
}

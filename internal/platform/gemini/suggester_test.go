package gemini

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTask(t *testing.T, title string) *domain.Task {
	t.Helper()
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task, err := domain.NewTask(uuid.New(), title, "details", domain.QuadrantSchedule, &due)
	require.NoError(t, err)
	return task
}

func TestBuildPrompt(t *testing.T) {
	task := testTask(t, "Write quarterly report")

	prompt, err := buildPrompt([]*domain.Task{task})
	require.NoError(t, err)

	assert.Contains(t, prompt, task.ID.String())
	assert.Contains(t, prompt, `"Write quarterly report"`)
	assert.Contains(t, prompt, "2025-06-01")
	assert.Contains(t, prompt, "JSON array")
}

func TestBuildPromptEmptyBatch(t *testing.T) {
	_, err := buildPrompt(nil)
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestBuildPromptQuotesNewlines(t *testing.T) {
	task := testTask(t, "line one\nline two")

	prompt, err := buildPrompt([]*domain.Task{task})
	require.NoError(t, err)

	// The raw newline must not appear inside the task line.
	assert.Contains(t, prompt, `"line one\nline two"`)
}

func TestParseSuggestions(t *testing.T) {
	id := uuid.New()
	raw := `[{"task_id": "` + id.String() + `", "quadrant": "q1", "reason": "deadline tomorrow"}]`

	suggestions, err := parseSuggestions(raw)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, id, suggestions[0].TaskID)
	assert.Equal(t, domain.QuadrantDoFirst, suggestions[0].Quadrant)
	assert.Equal(t, "deadline tomorrow", suggestions[0].Reason)
}

func TestParseSuggestionsStripsCodeFence(t *testing.T) {
	id := uuid.New()
	raw := "```json\n[{\"task_id\": \"" + id.String() + "\", \"quadrant\": \"q2\"}]\n```"

	suggestions, err := parseSuggestions(raw)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, domain.QuadrantSchedule, suggestions[0].Quadrant)
}

func TestParseSuggestionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "the tasks look fine to me"},
		{"missing task id", `[{"quadrant": "q1"}]`},
		{"bad quadrant", `[{"task_id": "` + uuid.New().String() + `", "quadrant": "q9"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSuggestions(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	userID := uuid.New()
	due := time.Now().UTC().Add(24 * time.Hour)

	task, err := domain.NewTask(userID, "Write quarterly report", "deck + summary", domain.QuadrantDoFirst, &due)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, userID, task.UserID)
	assert.Equal(t, domain.QuadrantDoFirst, task.Quadrant)
	assert.False(t, task.Completed)
	assert.WithinDuration(t, time.Now().UTC(), task.CreatedAt, time.Second)
}

func TestTaskValidate(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name    string
		mutate  func(*domain.Task)
		wantErr error
	}{
		{"valid", func(*domain.Task) {}, nil},
		{"missing ID", func(task *domain.Task) { task.ID = uuid.Nil }, domain.ErrEmptyTaskID},
		{"missing user ID", func(task *domain.Task) { task.UserID = uuid.Nil }, domain.ErrEmptyTaskUserID},
		{"empty title", func(task *domain.Task) { task.Title = "" }, domain.ErrEmptyTitle},
		{"title too long", func(task *domain.Task) { task.Title = strings.Repeat("x", 201) }, domain.ErrTitleTooLong},
		{"bad quadrant", func(task *domain.Task) { task.Quadrant = "q5" }, domain.ErrInvalidQuadrant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := domain.NewTask(userID, "Title", "", domain.QuadrantSchedule, nil)
			require.NoError(t, err)

			tt.mutate(task)
			err = task.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrValidation)
			}
		})
	}
}

func TestQuadrantValid(t *testing.T) {
	for _, q := range []domain.Quadrant{
		domain.QuadrantDoFirst,
		domain.QuadrantSchedule,
		domain.QuadrantDelegate,
		domain.QuadrantEliminate,
	} {
		assert.True(t, q.Valid(), "quadrant %s", q)
	}

	assert.False(t, domain.Quadrant("").Valid())
	assert.False(t, domain.Quadrant("q5").Valid())
	assert.False(t, domain.Quadrant("Q1").Valid())
}

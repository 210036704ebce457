package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task validation errors. Each wraps ErrValidation so callers can match the
// whole family with errors.Is.
var (
	ErrEmptyTaskID     = fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	ErrEmptyTaskUserID = fmt.Errorf("%w: task user ID cannot be empty", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: task title cannot be empty", ErrValidation)
	ErrTitleTooLong    = fmt.Errorf("%w: task title must be at most 200 characters", ErrValidation)
)

// Quadrant identifies one of the four Eisenhower matrix partitions a task
// is prioritized into.
type Quadrant string

const (
	// QuadrantDoFirst is urgent and important.
	QuadrantDoFirst Quadrant = "q1"
	// QuadrantSchedule is important but not urgent.
	QuadrantSchedule Quadrant = "q2"
	// QuadrantDelegate is urgent but not important.
	QuadrantDelegate Quadrant = "q3"
	// QuadrantEliminate is neither urgent nor important.
	QuadrantEliminate Quadrant = "q4"
)

// Valid reports whether q names one of the four quadrants.
func (q Quadrant) Valid() bool {
	switch q {
	case QuadrantDoFirst, QuadrantSchedule, QuadrantDelegate, QuadrantEliminate:
		return true
	default:
		return false
	}
}

// Task represents one entry in a user's Eisenhower matrix.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Quadrant    Quadrant   `json:"quadrant"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a Task for the given user with a fresh ID and timestamps.
// Returns an error if validation fails.
func NewTask(userID uuid.UUID, title, description string, quadrant Quadrant, dueDate *time.Time) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Quadrant:    quadrant,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}
	if t.Title == "" {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return ErrTitleTooLong
	}
	if !t.Quadrant.Valid() {
		return ErrInvalidQuadrant
	}
	return nil
}

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/platform/gemini"
)

// RegisterRequest is the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest is the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse is the successful response for authentication endpoints.
type AuthResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// RefreshTokenRequest is the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse is the successful response for the token refresh
// endpoint.
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CreateTaskRequest is the payload for the task creation endpoint.
type CreateTaskRequest struct {
	Title       string     `json:"title"       validate:"required,max=200"`
	Description string     `json:"description"`
	Quadrant    string     `json:"quadrant"    validate:"required,oneof=q1 q2 q3 q4"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the payload for the task update endpoint. Omitted
// fields are left unchanged; clear_due_date removes the due date.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"        validate:"omitempty,max=200"`
	Description  *string    `json:"description,omitempty"`
	Quadrant     *string    `json:"quadrant,omitempty"     validate:"omitempty,oneof=q1 q2 q3 q4"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
}

// TaskResponse is the serialized form of a task.
type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Quadrant    string     `json:"quadrant"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Quadrant:    string(task.Quadrant),
		Completed:   task.Completed,
		DueDate:     task.DueDate,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// TaskListResponse wraps the task collection endpoint payload.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

func newTaskListResponse(tasks []*domain.Task) TaskListResponse {
	out := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, newTaskResponse(t))
	}
	return out
}

// SuggestResponse carries AI quadrant placement suggestions.
type SuggestResponse struct {
	Suggestions []gemini.Suggestion `json:"suggestions"`
}

// HealthResponse reports service health along with circuit breaker and
// cache state for observability.
type HealthResponse struct {
	Status   string                     `json:"status"`
	Breakers []breaker.Snapshot         `json:"breakers,omitempty"`
	Cache    map[string]cache.TierStats `json:"cache,omitempty"`
}

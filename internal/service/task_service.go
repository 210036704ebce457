package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/platform/gemini"
	"github.com/phrazzld/matrix-api/internal/store"
)

// Suggester produces quadrant placement suggestions for a batch of tasks.
// Implemented by gemini.Suggester in production.
type Suggester interface {
	Suggest(ctx context.Context, tasks []*domain.Task) ([]gemini.Suggestion, error)
}

// CompletionNotifier delivers task completion events to an external
// endpoint. Implemented by webhook.Notifier in production.
type CompletionNotifier interface {
	TaskCompleted(ctx context.Context, task *domain.Task) error
}

// TaskUpdate carries the mutable fields of a task. Nil pointers leave the
// corresponding field unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Quadrant    *domain.Quadrant
	DueDate     *time.Time
	ClearDue    bool
}

// TaskService orchestrates task CRUD and AI prioritization. Reads go through
// the cache first, store access and outbound AI calls run inside their
// circuit breakers, and mutations invalidate the per-user list entry.
type TaskService struct {
	taskStore   store.TaskStore
	cacheMgr    *cache.Manager
	dbBreaker   *breaker.Breaker
	aiBreaker   *breaker.Breaker
	httpBreaker *breaker.Breaker
	suggester   Suggester
	notifier    CompletionNotifier
	logger      *slog.Logger

	listTTL    time.Duration
	suggestTTL time.Duration
}

// NewTaskService creates a TaskService. The notifier is optional; when set,
// completion events are delivered through the HTTP breaker. All other
// collaborators are required.
func NewTaskService(
	taskStore store.TaskStore,
	cacheMgr *cache.Manager,
	dbBreaker *breaker.Breaker,
	aiBreaker *breaker.Breaker,
	httpBreaker *breaker.Breaker,
	suggester Suggester,
	notifier CompletionNotifier,
	logger *slog.Logger,
) (*TaskService, error) {
	if taskStore == nil {
		return nil, errors.New("taskStore cannot be nil")
	}
	if cacheMgr == nil {
		return nil, errors.New("cacheMgr cannot be nil")
	}
	if dbBreaker == nil || aiBreaker == nil {
		return nil, errors.New("breakers cannot be nil")
	}
	if notifier != nil && httpBreaker == nil {
		return nil, errors.New("httpBreaker cannot be nil when a notifier is set")
	}
	if suggester == nil {
		return nil, errors.New("suggester cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &TaskService{
		taskStore:   taskStore,
		cacheMgr:    cacheMgr,
		dbBreaker:   dbBreaker,
		aiBreaker:   aiBreaker,
		httpBreaker: httpBreaker,
		suggester:   suggester,
		notifier:    notifier,
		logger:      logger.With("component", "task_service"),
		listTTL:     5 * time.Minute,
		suggestTTL:  30 * time.Minute,
	}, nil
}

func listKey(userID uuid.UUID) string {
	return "tasks:" + userID.String()
}

func suggestKey(userID uuid.UUID) string {
	return "suggest:" + userID.String()
}

// CreateTask validates and persists a new task for the user.
func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, title, description string, quadrant domain.Quadrant, dueDate *time.Time) (*domain.Task, error) {
	task, err := domain.NewTask(userID, title, description, quadrant, dueDate)
	if err != nil {
		return nil, err
	}

	_, err = s.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, s.taskStore.Create(ctx, task)
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.cacheMgr.Delete(cache.TierMain, listKey(userID))
	s.logger.Info("task created", "task_id", task.ID, "user_id", userID, "quadrant", task.Quadrant)
	return task, nil
}

// GetTask retrieves a single task, enforcing ownership.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	result, err := s.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.taskStore.GetByID(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}

	task := result.(*domain.Task)
	if task.UserID != userID {
		return nil, ErrTaskNotOwned
	}
	return task, nil
}

// ListTasks returns all tasks for the user, newest first. The result is
// served from the main cache tier when present and cached on miss.
func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	if cached, ok := s.cacheMgr.Get(cache.TierMain, listKey(userID)); ok {
		if tasks, ok := cached.([]*domain.Task); ok {
			return tasks, nil
		}
	}

	result, err := s.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.taskStore.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	tasks := result.([]*domain.Task)
	if err := s.cacheMgr.Set(cache.TierMain, listKey(userID), tasks, s.listTTL); err != nil {
		s.logger.Warn("failed to cache task list", "user_id", userID, "error", err)
	}
	return tasks, nil
}

// UpdateTask applies the given field changes to a task the user owns.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, update TaskUpdate) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	// Work on a copy so a validation failure leaves the stored entity
	// untouched even when the store hands out shared references.
	updated := *task
	if update.Title != nil {
		updated.Title = *update.Title
	}
	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Quadrant != nil {
		updated.Quadrant = *update.Quadrant
	}
	if update.ClearDue {
		updated.DueDate = nil
	} else if update.DueDate != nil {
		updated.DueDate = update.DueDate
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := s.persistUpdate(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CompleteTask marks a task the user owns as completed. Completing an
// already completed task is a no-op.
func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return task, nil
	}

	completed := *task
	completed.Completed = true
	if err := s.persistUpdate(ctx, &completed); err != nil {
		return nil, err
	}

	s.notifyCompleted(ctx, &completed)
	return &completed, nil
}

// notifyCompleted delivers a completion event through the HTTP breaker.
// Delivery is best effort; failures are logged and never fail the mutation.
func (s *TaskService) notifyCompleted(ctx context.Context, task *domain.Task) {
	if s.notifier == nil {
		return
	}

	_, err := s.httpBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, s.notifier.TaskCompleted(ctx, task)
	})
	if err != nil {
		s.logger.Warn("task completion webhook failed",
			"task_id", task.ID, "user_id", task.UserID, "error", err)
	}
}

func (s *TaskService) persistUpdate(ctx context.Context, task *domain.Task) error {
	_, err := s.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, s.taskStore.Update(ctx, task)
	})
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	s.cacheMgr.Delete(cache.TierMain, listKey(task.UserID))
	return nil
}

// DeleteTask removes a task the user owns.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return err
	}

	_, err := s.dbBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, s.taskStore.Delete(ctx, taskID)
	})
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	s.cacheMgr.Delete(cache.TierMain, listKey(userID))
	s.cacheMgr.Delete(cache.TierAIResults, suggestKey(userID))
	s.logger.Info("task deleted", "task_id", taskID, "user_id", userID)
	return nil
}

// SuggestPriorities asks the AI suggester to place the user's open tasks
// into quadrants. Calls run inside the AI circuit breaker; when the call is
// rejected or fails, a previously cached suggestion set for the same user is
// served instead.
func (s *TaskService) SuggestPriorities(ctx context.Context, userID uuid.UUID) ([]gemini.Suggestion, error) {
	tasks, err := s.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	open := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil, ErrNoOpenTasks
	}

	result, err := s.aiBreaker.ExecuteWithFallback(ctx,
		func(ctx context.Context) (any, error) {
			return s.suggester.Suggest(ctx, open)
		},
		func(ctx context.Context) (any, error) {
			cached, ok := s.cacheMgr.Get(cache.TierAIResults, suggestKey(userID))
			if !ok {
				return nil, errors.New("no cached suggestions")
			}
			s.logger.Warn("serving cached prioritization suggestions", "user_id", userID)
			return cached, nil
		},
	)
	if err != nil {
		return nil, err
	}

	suggestions := result.([]gemini.Suggestion)
	if err := s.cacheMgr.Set(cache.TierAIResults, suggestKey(userID), suggestions, s.suggestTTL); err != nil {
		s.logger.Warn("failed to cache suggestions", "user_id", userID, "error", err)
	}
	return suggestions, nil
}

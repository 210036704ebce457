package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/store"
)

// AccountService provisions new user accounts. Registration creates the
// user and their starter tasks in one transaction so a half-provisioned
// account never survives a failure.
type AccountService struct {
	userStore store.UserStore
	taskStore store.TaskStore
	logger    *slog.Logger

	runTx func(ctx context.Context, fn store.TxFn) error
}

// NewAccountService creates an AccountService using db for transactions.
func NewAccountService(db *sql.DB, userStore store.UserStore, taskStore store.TaskStore, logger *slog.Logger) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if userStore == nil || taskStore == nil {
		return nil, errors.New("stores cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &AccountService{
		userStore: userStore,
		taskStore: taskStore,
		logger:    logger.With("component", "account_service"),
		runTx: func(ctx context.Context, fn store.TxFn) error {
			return store.RunInTransaction(ctx, db, fn)
		},
	}, nil
}

// RegisterUser validates the credentials, then creates the user together
// with their onboarding tasks atomically.
func (s *AccountService) RegisterUser(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.userStore.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		taskStore := s.taskStore.WithTx(tx)
		for _, task := range starterTasks(user.ID) {
			if err := taskStore.Create(ctx, task); err != nil {
				return fmt.Errorf("seeding starter task: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// starterTasks builds the onboarding tasks seeded into every new account.
func starterTasks(userID uuid.UUID) []*domain.Task {
	specs := []struct {
		title       string
		description string
		quadrant    domain.Quadrant
	}{
		{
			title:       "Add your first task",
			description: "Capture something urgent and important, then place it in Do First.",
			quadrant:    domain.QuadrantDoFirst,
		},
		{
			title:       "Review your matrix",
			description: "Important but not urgent work belongs in Schedule. Plan a weekly review.",
			quadrant:    domain.QuadrantSchedule,
		},
	}

	tasks := make([]*domain.Task, 0, len(specs))
	for _, spec := range specs {
		// Inputs are fixed and valid, so NewTask cannot fail here.
		task, _ := domain.NewTask(userID, spec.title, spec.description, spec.quadrant, nil)
		tasks = append(tasks, task)
	}
	return tasks
}

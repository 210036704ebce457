// Package service contains the application services orchestrating domain
// operations across the store, cache, and guarded outbound dependencies.
package service

import "errors"

var (
	// ErrTaskNotOwned is returned when a caller operates on a task owned
	// by another user.
	ErrTaskNotOwned = errors.New("task not owned by user")

	// ErrNoOpenTasks is returned when a prioritization is requested and
	// the user has no open tasks to prioritize.
	ErrNoOpenTasks = errors.New("no open tasks to prioritize")
)

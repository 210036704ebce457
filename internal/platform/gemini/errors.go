// Package gemini integrates with Google's Gemini API to produce quadrant
// prioritization suggestions for a batch of tasks. The circuit breaker
// wraps calls to Suggest at the service layer; this package only builds the
// prompt, performs the call, and parses the response.
package gemini

import "errors"

var (
	// ErrInvalidConfig is returned when the suggester configuration is
	// incomplete or invalid.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrNoTasks is returned when a suggestion is requested for an empty
	// task batch.
	ErrNoTasks = errors.New("no tasks to prioritize")

	// ErrInvalidResponse is returned when the model's response cannot be
	// parsed into suggestions.
	ErrInvalidResponse = errors.New("invalid model response")
)

package api

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/phrazzld/matrix-api/internal/api/shared"
	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/ratelimit"
	"github.com/phrazzld/matrix-api/internal/service"
	"github.com/phrazzld/matrix-api/internal/service/auth"
	"github.com/phrazzld/matrix-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrTaskNotOwned):
		return http.StatusForbidden

	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, breaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable

	case errors.Is(err, breaker.ErrCallTimeout):
		return http.StatusGatewayTimeout

	case errors.Is(err, service.ErrNoOpenTasks):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQuadrant),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid refresh token"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, service.ErrTaskNotOwned):
		return "You do not own this task"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, ratelimit.ErrLimited):
		return "Rate limit exceeded, try again later"

	case errors.Is(err, breaker.ErrCircuitOpen):
		return "Service temporarily unavailable, try again later"

	case errors.Is(err, breaker.ErrCallTimeout):
		return "Upstream request timed out"

	case errors.Is(err, service.ErrNoOpenTasks):
		return "No open tasks to prioritize"

	case errors.Is(err, domain.ErrInvalidQuadrant):
		return "Invalid quadrant"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid identifier"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status code and safe message for err,
// logging the underlying error with redaction. An empty userMessage falls
// back to GetSafeErrorMessage.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}

	opts := retryAfterOptions(err)
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err, opts...)
}

// retryAfterOptions derives a Retry-After header from rate limit and open
// circuit errors.
func retryAfterOptions(err error) []shared.ResponseOption {
	var limitErr *ratelimit.Error
	if errors.As(err, &limitErr) {
		return []shared.ResponseOption{shared.WithRetryAfter(limitErr.RetryAfterSeconds())}
	}

	var openErr *breaker.OpenError
	if errors.As(err, &openErr) && openErr.RetryAfter > 0 {
		seconds := int(math.Ceil(openErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		return []shared.ResponseOption{shared.WithRetryAfter(seconds)}
	}
	return nil
}

// SanitizeValidationError turns a validator error into a short user-facing
// message without echoing raw input back.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()
	if !strings.Contains(errMsg, "Field validation") {
		return "Validation error"
	}

	parts := strings.Split(errMsg, "Error:")
	if len(parts) < 2 {
		return "Validation error"
	}
	fieldParts := strings.Split(parts[1], "'")
	if len(fieldParts) < 3 {
		return "Validation error"
	}

	field := fieldParts[1]
	var tag string
	if len(fieldParts) >= 5 {
		tag = fieldParts[3]
	}
	if tag == "" {
		return "Invalid " + field
	}
	return "Invalid " + field + ": " + validationTagMessage(tag)
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

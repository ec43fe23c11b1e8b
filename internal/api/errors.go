package api

import (
	"errors"
	"net/http"

	"github.com/threadsift/threadsift/internal/analysis"
	"github.com/threadsift/threadsift/internal/store"
	"github.com/threadsift/threadsift/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error detail to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, analysis.ErrEmptyThread),
		errors.Is(err, analysis.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrUnavailable):
		return "Storage temporarily unavailable"
	case errors.Is(err, analysis.ErrEmptyThread):
		return "No comments to analyze"
	default:
		return "An unexpected error occurred"
	}
}

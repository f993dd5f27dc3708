// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across the workflow domain layer.
var (
	// ErrNotFound indicates an unknown quote, production, sale or catalog item.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrency guard or uniqueness constraint
	// rejected a racing or duplicate write.
	ErrConflict = errors.New("conflict")
	// ErrPreconditionFailed indicates an operation invoked on an entity in
	// the wrong state.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrPreconditionFailed):
		Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

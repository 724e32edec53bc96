// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/counsel-pm/counsel/internal/shared"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNoActiveFirm):
		return http.StatusConflict
	case errors.Is(err, shared.ErrMissingPermission),
		errors.Is(err, shared.ErrNotAMember),
		errors.Is(err, shared.ErrRoleNotFound):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrDuplicateRole), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidPermission), errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. The detail
// is the user-safe message, so authorization failures never name the
// permission or firm that was checked.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	Problem(w, status, http.StatusText(status), shared.UserSafeMessage(err))
}

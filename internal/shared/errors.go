package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates the credential could not be verified.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoActiveFirm indicates a firm-scoped action without a selected firm.
	ErrNoActiveFirm = errors.New("no active firm")
	// ErrNotAMember indicates the actor is not a live member of the target firm.
	ErrNotAMember = errors.New("not a member")
	// ErrRoleNotFound indicates a missing or out-of-scope role reference.
	ErrRoleNotFound = errors.New("role not found")
	// ErrInvalidPermission indicates a permission id outside the catalog.
	ErrInvalidPermission = errors.New("invalid permission")
	// ErrMissingPermission indicates the actor lacks every accepted permission.
	ErrMissingPermission = errors.New("missing permission")
	// ErrDuplicateRole indicates a role name already used within the firm.
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness clash other than a role name.
	ErrConflict = errors.New("conflict")
)

// UserSafeMessage returns the message end users may see for err. Authorization
// failures collapse to generic prompts so the checked permission or firm never
// leaks; authoring errors are returned verbatim.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoActiveFirm):
		return "select a firm to continue"
	case errors.Is(err, ErrMissingPermission), errors.Is(err, ErrNotAMember), errors.Is(err, ErrRoleNotFound):
		return "not authorized"
	case errors.Is(err, ErrInvalidCredentials):
		return "authentication required"
	case errors.Is(err, ErrInvalidPermission), errors.Is(err, ErrDuplicateRole),
		errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "not found"
	default:
		return "internal error"
	}
}

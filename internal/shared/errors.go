package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when an insert or update hits the unique
	// email constraint.
	ErrEmailTaken = errors.New("email already exists")
	// ErrInvalidID indicates a malformed record identifier.
	ErrInvalidID = errors.New("invalid id")
	// ErrInvalidRole indicates a role string outside the enumerated set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrCSRFTokenMissing occurs when the CSRF token is absent.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps internal errors to text safe to show in a notice.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Record not found"
	case errors.Is(err, ErrEmailTaken):
		return "Username/email already exists"
	case errors.Is(err, ErrInvalidID):
		return "Invalid id"
	case errors.Is(err, ErrInvalidRole):
		return "Invalid role"
	default:
		return "Something went wrong, please try again"
	}
}

package services

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateAccount     = errors.New("account already exists for email")
	ErrEmailInUse           = errors.New("email already in use")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("user not found")
)

// ValidationError is a user-correctable input problem. Its message is safe
// to show to clients verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ResendTooSoonError reports that a new OTP was requested before the
// resend cooldown elapsed.
type ResendTooSoonError struct {
	RetryAfterSeconds int
}

func (e *ResendTooSoonError) Error() string {
	return fmt.Sprintf("resend requested %ds too early", e.RetryAfterSeconds)
}

package services

import (
	"fmt"

	apperrors "github.com/charlesng35/accountd/pkg/errors"
)

var (
	// ErrUserAlreadyExists is returned when the username or email is already registered.
	ErrUserAlreadyExists = apperrors.ErrUserAlreadyExists
	// ErrEmailNotFound is returned by ForgotPassword for an unregistered address.
	ErrEmailNotFound = apperrors.ErrEmailNotFound
	// ErrEmailFailure wraps a mailer error that aborted the operation.
	ErrEmailFailure = apperrors.ErrEmailFailure
	// ErrInvalidToken is returned when a password reset token fails validation.
	ErrInvalidToken = apperrors.ErrInvalidToken
)

// UserNotVerifiedError blocks login for accounts whose email is unconfirmed.
type UserNotVerifiedError struct {
	// ResendAttempted is true when this login sent a fresh verification email.
	ResendAttempted bool

	transport *apperrors.AppError
}

func newUserNotVerifiedError(resent bool) *UserNotVerifiedError {
	return &UserNotVerifiedError{
		ResendAttempted: resent,
		transport:       apperrors.ErrUserNotVerified.WithDetail("resend_attempted", resent),
	}
}

func (e *UserNotVerifiedError) Error() string {
	return fmt.Sprintf("user not verified (resend attempted: %t)", e.ResendAttempted)
}

// Unwrap exposes the transport error carrying the resend flag as a detail. Values built
// without newUserNotVerifiedError get a fresh copy on each call.
func (e *UserNotVerifiedError) Unwrap() error {
	if e.transport != nil {
		return e.transport
	}
	return apperrors.ErrUserNotVerified.WithDetail("resend_attempted", e.ResendAttempted)
}

func emailFailure(err error) error {
	return ErrEmailFailure.WithInternal(err)
}

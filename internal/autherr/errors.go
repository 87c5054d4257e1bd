package autherr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a stable machine-readable error code. The HTTP boundary maps each
// kind to a status and returns the kind verbatim; it is the only part of an
// error that crosses the service boundary for operational failures.
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindDuplicateEmail          Kind = "DUPLICATE_EMAIL"
	KindInvalidCredentials      Kind = "INVALID_CREDENTIALS"
	KindOAuthOnlyAccount        Kind = "OAUTH_ONLY_ACCOUNT"
	KindEmailNotVerified        Kind = "EMAIL_NOT_VERIFIED"
	KindNoActiveCode            Kind = "NO_ACTIVE_CODE"
	KindCodeExpired             Kind = "CODE_EXPIRED"
	KindInvalidCode             Kind = "INVALID_CODE"
	KindCooldown                Kind = "COOLDOWN"
	KindInvalidToken            Kind = "INVALID_TOKEN"
	KindExpiredToken            Kind = "EXPIRED_TOKEN"
	KindForbidden               Kind = "FORBIDDEN"
	KindNotFound                Kind = "NOT_FOUND"
	KindMissingProviderEmail    Kind = "MISSING_PROVIDER_EMAIL"
	KindMissingProviderIdentity Kind = "MISSING_PROVIDER_IDENTITY"
	KindNotificationFailed      Kind = "NOTIFICATION_FAILED"
	KindSystem                  Kind = "SYSTEM_ERROR"
)

// Error is a typed operational failure. Every kind except KindSystem is
// expected, user-actionable and safe to return verbatim.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set only for KindCooldown.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes two errors of the same kind match under errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an operational error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// System wraps an unexpected internal failure. The cause is kept for
// server-side logging only and must never be serialized to callers.
func System(message string, cause error) *Error {
	return &Error{Kind: KindSystem, Message: message, cause: cause}
}

// Cooldown creates a cooldown error carrying the remaining wait.
func Cooldown(remaining time.Duration) *Error {
	if remaining < time.Second {
		remaining = time.Second
	}
	return &Error{
		Kind:       KindCooldown,
		Message:    fmt.Sprintf("please wait %d seconds before requesting a new code", int(remaining.Seconds())),
		RetryAfter: remaining,
	}
}

// KindOf extracts the kind from an error chain, defaulting to KindSystem.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

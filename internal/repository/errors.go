package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create a user with an existing email
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicateToken is returned when trying to create a token with an existing hash
	ErrDuplicateToken = errors.New("token with this hash already exists")

	// ErrDuplicateOAuthLink is returned when trying to create a duplicate OAuth link
	ErrDuplicateOAuthLink = errors.New("oauth link already exists")

	// ErrCooldownActive is returned when a code issuance claim loses against
	// the cooldown window
	ErrCooldownActive = errors.New("code issuance cooldown is active")

	// ErrNoActiveCode is returned when clearing a code that is not on record
	ErrNoActiveCode = errors.New("no active code on record")
)

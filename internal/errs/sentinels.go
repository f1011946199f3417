// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (email or api key already taken).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates a request that failed field validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Conflict variants. Both match ErrConflict via errors.Is.
var (
	ErrEmailExists = fmt.Errorf("email already exists: %w", ErrConflict)
	ErrKeyInUse    = fmt.Errorf("api key already in use: %w", ErrConflict)
)

// Authentication and verification failures.
var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOldPassword = errors.New("invalid old password")

	ErrInvalidOrInactiveToken = errors.New("invalid or inactive api key")
	ErrEmailNotVerified       = errors.New("email is not verified")

	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidCode  = errors.New("invalid verification code")
	ErrCodeExpired  = errors.New("verification code expired")
)

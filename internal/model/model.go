// Package model defines domain entities used by services and repositories.
package model

import "time"

// Account is a website login bound to one activation token. Email is the primary key.
type Account struct {
	Email         string
	PasswordHash  []byte // encoded Argon2id hash, salt embedded
	APIKey        string // unique across accounts
	EmailVerified bool

	// Pending verification state. All three are nil once the email is verified.
	VerificationCode *string
	CodeExpiry       *time.Time
	CodeCreated      *time.Time

	// Reserved columns, never written or read by the workflow.
	IPAddress    *string
	SessionToken *string
}

// HasPendingCode reports whether a verification code is currently stored.
func (a *Account) HasPendingCode() bool {
	return a.VerificationCode != nil && *a.VerificationCode != ""
}

// ActivationToken is an externally issued api key that permits registration and data access.
// Its lifecycle (issuance, deactivation) is owned by another system.
type ActivationToken struct {
	APIKey   string
	OwnerID  string // issuing identity, audit only
	IssuedAt time.Time
	Active   bool
}

// VerificationCode is a freshly issued one-time code with its validity window.
type VerificationCode struct {
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LoginResult is returned on successful password authentication.
type LoginResult struct {
	APIKey    string
	Activated bool // email verified
}

// ResendResult reports whether a new verification code was issued.
// Sent is false when the previous code is too recent; this is not an error.
type ResendResult struct {
	Sent            bool
	AlreadyVerified bool // account needs no code
}

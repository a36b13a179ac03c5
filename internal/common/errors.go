// Package common defines the sentinel errors and shared helpers used across
// AuthKeeper layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")

	// Service-level errors.
	ErrValidation         = errors.New("validation error")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrInvalidOrExpiredToken covers unknown, expired and already consumed
	// reset tokens alike.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrorInternal            = errors.New("internal error")
	ErrorUnauthorized        = errors.New("unauthorized")

	// Password hash errors.
	ErrCorruptHash = errors.New("corrupt password hash")

	// Session token errors.
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("malformed token")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

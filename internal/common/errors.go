// Package common defines shared sentinel errors used across the file drop
// service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers every credential failure. A wrong password and a
	// username already claimed by someone else are deliberately reported the
	// same way, so usernames stay non-enumerable.
	ErrUnauthorized = errors.New("credentials rejected")

	// Upload policy errors.
	ErrValidation = errors.New("validation error")
	ErrCapacity   = errors.New("capacity limit exceeded")

	// Storage errors.
	ErrStorage     = errors.New("storage failure")
	ErrConsistency = errors.New("file record references missing content")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// Package common defines the sentinel errors shared across the service
// layers. Callers should use errors.Is to match these values; handlers map
// each one to exactly one HTTP status.
package common

import "errors"

var (
	// Authentication / authorization errors.
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")

	// Request validation errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Business-rule violations.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Unexpected/infrastructure failures. Low-level detail never crosses
	// the API boundary; it is logged and normalized to this.
	ErrInternal = errors.New("internal error")
)

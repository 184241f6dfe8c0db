// Package common defines shared constants and sentinel errors used across
// device and server layers of fieldseal. Callers should use errors.Is to
// match these values.
package common

import (
	"context"
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Auth errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")

	// Sync errors.
	ErrTransientNetwork   = errors.New("transient network error")
	ErrValidation         = errors.New("validation error")
	ErrVersionConflict    = errors.New("version conflict")
	ErrConflictUnresolved = errors.New("unresolved conflict blocks overwrite")
	ErrNotCancellable     = errors.New("action is not pending and cannot be cancelled")

	// Evidence errors.
	ErrAlreadySealed       = errors.New("job is already sealed")
	ErrSealedJobImmutable  = errors.New("sealed job is immutable")
	ErrSealQueued          = errors.New("seal queued for delivery")
	ErrHashMismatch        = errors.New("evidence hash mismatch")
	ErrInvalidSignature    = errors.New("invalid seal signature")
	ErrLegacyHMACDisabled  = errors.New("legacy hmac sealing is disabled")
	ErrUnsupportedSealAlgo = errors.New("unsupported seal algorithm")

	// Store errors.
	ErrSchemaCorruption = errors.New("local schema corruption")
)

// ValidationError carries the accumulated reasons a request was rejected.
type ValidationError struct {
	Reasons []string
}

func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, context.DeadlineExceeded)
}

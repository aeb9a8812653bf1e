// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Structural errors surfaced to API clients with explicit messages.
var (
	ErrMissingField        = errors.New("missing required fields")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionExpired  = errors.New("transaction expired")
	ErrCardNotRegistered   = errors.New("card not registered")

	// Device / session errors
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrDeviceNotConnected  = errors.New("phone not connected for this card")
	ErrSessionNotFound     = errors.New("no active session for card")
	ErrInvalidAttestation  = errors.New("device attestation verification failed")

	// Phone verification (step-up) errors
	ErrProviderUnavailable = errors.New("verification provider not configured")
	ErrProviderError       = errors.New("verification provider error")
	ErrCodeRejected        = errors.New("invalid verification code")

	// Transaction state errors
	ErrNotAwaitingConfirmation = errors.New("transaction is not awaiting confirmation")
	ErrAlreadyFinalized        = errors.New("transaction already finalized")
)

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

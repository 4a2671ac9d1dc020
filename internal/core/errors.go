package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotRegistered = errors.New("identity is not registered")
	ErrNotFound      = errors.New("not found")
	ErrBusy          = errors.New("still working on your previous message")
	// ErrDuplicate marks an already merged external item. It is expected
	// during sync and never shown to users.
	ErrDuplicate = errors.New("duplicate origin")
)

type AuthorizationError struct {
	Have Role
	Need Role
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("requires %s role, have %s", e.Need, e.Have)
}

// ValidationError is user input that should be re-prompted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

type ExternalServiceError struct {
	Service   string
	Status    int
	Transient bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

type ExtractionReason string

const (
	ReasonTransientExhausted ExtractionReason = "transient_exhausted"
	ReasonUnsupported        ExtractionReason = "unsupported"
)

type ExtractionFailure struct {
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionFailure) Error() string {
	if e.Err == nil {
		return "extraction failed: " + string(e.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// Retryable reports whether the user can usefully resubmit the same artifact.
func (e *ExtractionFailure) Retryable() bool {
	return e.Reason == ReasonTransientExhausted
}

type DeliveryFailure struct {
	IdentityID int64
	Err        error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.IdentityID, e.Err)
}

func (e *DeliveryFailure) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Transient
	}
	var del *DeliveryFailure
	return errors.As(err, &del)
}

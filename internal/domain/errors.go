package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBusy             = errors.New("another charger request is already in flight")
	ErrTimeout          = errors.New("timed out waiting for charger response")
	ErrSessionNotFound  = errors.New("session not found")
	ErrTokenNotFound    = errors.New("session token not found or already used")
	ErrWrongState       = errors.New("session state does not allow this action")
	ErrMissingReference = errors.New("session is missing a required gateway reference")
	ErrChargerRefused   = errors.New("charger refused the session")
)

type GatewayErrorKind string

const (
	// GatewayDeclined is a definitive rejection: retrying cannot succeed.
	GatewayDeclined GatewayErrorKind = "declined"
	// GatewayTransient is a network or 5xx-class failure worth retrying.
	GatewayTransient GatewayErrorKind = "transient"
)

// GatewayError is the typed result of a failed payment gateway call, so
// retry-vs-fatal classification is decided by the error type rather than
// by string inspection.
type GatewayError struct {
	Kind    GatewayErrorKind
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Retryable() bool {
	return e.Kind == GatewayTransient
}

// IsRetryableGatewayError reports whether err is a transient gateway failure.
// Declined and validation errors are terminal for the attempt.
func IsRetryableGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable()
}

// IsDeclined reports whether err is a definitive gateway rejection.
func IsDeclined(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayDeclined
}

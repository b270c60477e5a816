package domain

import (
	"fmt"
	"time"
)

type SessionState string

const (
	StateCreated             SessionState = "CREATED"
	StateAwaitingPaymentInfo SessionState = "AWAITING_PAYMENT_INFO"
	StateAuthRequested       SessionState = "AUTH_REQUESTED"
	StateAuthorized          SessionState = "AUTHORIZED"
	StateCaptured            SessionState = "CAPTURED"
	StateVoided              SessionState = "VOIDED"
	StateCanceled            SessionState = "CANCELED"
	StateRefunded            SessionState = "REFUNDED"
	StateFailed              SessionState = "FAILED"
)

// Protected states are never overwritten by a plain upsert; every other
// transition goes through an explicit Mark* call on the repository.
func (s SessionState) Protected() bool {
	return s == StateAuthorized || s == StateCaptured
}

// Settled states make a finalize message a no-op on redelivery.
func (s SessionState) Settled() bool {
	return s == StateCaptured || s == StateVoided
}

// SessionKey builds the deterministic idempotency key for a booking.
// It is never regenerated for the same booking.
func SessionKey(chargerID, bookingID string) string {
	return fmt.Sprintf("ev:%s:%s", chargerID, bookingID)
}

// CardMetadata holds non-sensitive display references to a stored card.
// Raw card data never enters the system.
type CardMetadata struct {
	CustomerID string
	CardID     string
	Brand      string
	Last4      string
	ExpMonth   int
	ExpYear    int
}

type Session struct {
	IdempotencyKey        string
	ChargerID             string
	BookingID             string
	SessionToken          string
	State                 SessionState
	AuthorizedAmountCents int64
	CapturedAmountCents   *int64
	PaymentID             string
	CapturePaymentID      string
	Card                  CardMetadata
	GatewayEnvironment    string
	LastError             string
	Note                  string
	IsDeleted             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

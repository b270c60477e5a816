package domain

import "context"

// Payment is the subset of the gateway's payment object the core cares about.
type Payment struct {
	ID          string
	Status      string
	AmountCents int64
	Card        CardMetadata
}

type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

// PaymentGateway covers the remote payment operations the core calls.
// Authorize and CreateCustomer are idempotent on bookingID at the gateway;
// ChargeImmediate and Refund take a caller-supplied idempotency key.
// customerID may be empty on Authorize when sourceID is a one-time wallet token.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, bookingID, givenName, familyName string) (string, error)
	CreateCard(ctx context.Context, sourceID, customerID, bookingID string) (CardMetadata, error)
	Authorize(ctx context.Context, sourceID, customerID, bookingID string, amountCents int64) (*Payment, error)
	// Capture updates the payment amount, then completes it (two-step).
	Capture(ctx context.Context, paymentID string, amountCents int64) (*Payment, error)
	Cancel(ctx context.Context, paymentID string) (*Payment, error)
	ChargeImmediate(ctx context.Context, cardID, customerID, bookingID string, amountCents int64, idempotencyKey string) (*Payment, error)
	// Refund with amountCents <= 0 refunds the full captured amount.
	Refund(ctx context.Context, paymentID string, amountCents int64, reason, idempotencyKey string) (*Refund, error)
}

package domain

// SessionEvent is the lifecycle event published to the downstream feed on
// every state transition worth observing.
type SessionEvent struct {
	IdempotencyKey string `json:"idempotency_key"`
	ChargerID      string `json:"charger_id"`
	BookingID      string `json:"booking_id"`
	State          string `json:"state"`
	AmountCents    int64  `json:"amount_cents"`
	PaymentID      string `json:"payment_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type SessionEventPort interface {
	PublishSessionEvent(event SessionEvent) error
}

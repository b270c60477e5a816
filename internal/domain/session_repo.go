package domain

import "context"

type SessionFilters struct {
	State          SessionState
	IncludeDeleted bool
}

// SessionRepository is the single owner of session persistence and
// transition legality. Upsert applies the no-downgrade rule on state;
// every Mark* transition is unconditional and authoritative.
type SessionRepository interface {
	Upsert(ctx context.Context, session *Session) error

	MarkAuthorized(ctx context.Context, key, paymentID string, amountCents int64, card CardMetadata) error
	MarkCaptured(ctx context.Context, key, capturePaymentID string, amountCents int64) error
	MarkVoided(ctx context.Context, key, paymentID string) error
	MarkCanceled(ctx context.Context, key, paymentID string) error
	MarkRefunded(ctx context.Context, key, refundID string, amountCents int64) error
	MarkFailed(ctx context.Context, key, errText string) error

	GetByKey(ctx context.Context, key string) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)
	GetByBookingID(ctx context.Context, bookingID string) (*Session, error)
	List(ctx context.Context, filters SessionFilters, limit, offset int) ([]*Session, error)

	AddNote(ctx context.Context, key, note string) error
	SoftDelete(ctx context.Context, key string) error
}

package session

import "sync"

// PendingBooking is the in-memory record keyed by a one-time session token
// between Start and SubmitPayment.
type PendingBooking struct {
	BookingID   string
	AmountCents int64
}

// PendingTokens maps one-time session tokens to their bookings. A token is
// consumed exactly once; the store-backed fallback in SubmitPayment covers
// tokens lost to a restart.
type PendingTokens struct {
	mu      sync.Mutex
	pending map[string]PendingBooking
}

func NewPendingTokens() *PendingTokens {
	return &PendingTokens{pending: make(map[string]PendingBooking)}
}

func (p *PendingTokens) Put(token string, booking PendingBooking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[token] = booking
}

// Consume removes and returns the booking for token. The second return is
// false when the token is unknown or already used.
func (p *PendingTokens) Consume(token string) (PendingBooking, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	booking, ok := p.pending[token]
	if ok {
		delete(p.pending, token)
	}
	return booking, ok
}

func (p *PendingTokens) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

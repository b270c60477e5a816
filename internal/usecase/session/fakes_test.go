package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/bus"
	"github.com/voltgate/ev-session-service/internal/infrastructure/metrics"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewSessionMetrics()

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeRepo(seed ...*domain.Session) *fakeRepo {
	repo := &fakeRepo{sessions: make(map[string]*domain.Session)}
	for _, s := range seed {
		cp := *s
		repo.sessions[s.IdempotencyKey] = &cp
	}
	return repo
}

func (f *fakeRepo) get(key string) *domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[key]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (f *fakeRepo) Upsert(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	if existing, ok := f.sessions[s.IdempotencyKey]; ok {
		if existing.State.Protected() {
			cp.State = existing.State
			cp.PaymentID = existing.PaymentID
			cp.Card = existing.Card
			cp.CapturedAmountCents = existing.CapturedAmountCents
		}
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	f.sessions[s.IdempotencyKey] = &cp
	return nil
}

func (f *fakeRepo) mutate(key string, apply func(*domain.Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[key]
	if !ok {
		return domain.ErrSessionNotFound
	}
	apply(s)
	s.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) MarkAuthorized(_ context.Context, key, paymentID string, amountCents int64, card domain.CardMetadata) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateAuthorized
		s.PaymentID = paymentID
		s.AuthorizedAmountCents = amountCents
		s.Card = card
		s.LastError = ""
	})
}

func (f *fakeRepo) MarkCaptured(_ context.Context, key, capturePaymentID string, amountCents int64) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateCaptured
		s.CapturePaymentID = capturePaymentID
		s.CapturedAmountCents = &amountCents
		s.LastError = ""
	})
}

func (f *fakeRepo) MarkVoided(_ context.Context, key, paymentID string) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateVoided
		zero := int64(0)
		s.CapturedAmountCents = &zero
		if paymentID != "" {
			s.PaymentID = paymentID
		}
		s.LastError = ""
	})
}

func (f *fakeRepo) MarkCanceled(_ context.Context, key, paymentID string) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateCanceled
		zero := int64(0)
		s.CapturedAmountCents = &zero
		if paymentID != "" {
			s.PaymentID = paymentID
		}
	})
}

func (f *fakeRepo) MarkRefunded(_ context.Context, key, refundID string, amountCents int64) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateRefunded
		s.CapturePaymentID = refundID
		s.CapturedAmountCents = &amountCents
	})
}

func (f *fakeRepo) MarkFailed(_ context.Context, key, errText string) error {
	return f.mutate(key, func(s *domain.Session) {
		s.State = domain.StateFailed
		s.LastError = errText
	})
}

func (f *fakeRepo) GetByKey(_ context.Context, key string) (*domain.Session, error) {
	if s := f.get(key); s != nil {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (f *fakeRepo) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.SessionToken == token && !s.IsDeleted {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrTokenNotFound
}

func (f *fakeRepo) GetByBookingID(_ context.Context, bookingID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Session
	for _, s := range f.sessions {
		if s.BookingID != bookingID || s.IsDeleted {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrSessionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, filters domain.SessionFilters, limit, offset int) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, s := range f.sessions {
		if filters.State != "" && s.State != filters.State {
			continue
		}
		if !filters.IncludeDeleted && s.IsDeleted {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) AddNote(_ context.Context, key, note string) error {
	return f.mutate(key, func(s *domain.Session) { s.Note = note })
}

func (f *fakeRepo) SoftDelete(_ context.Context, key string) error {
	return f.mutate(key, func(s *domain.Session) { s.IsDeleted = true })
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	createCustomerFn func() (string, error)
	createCardFn     func() (domain.CardMetadata, error)
	authorizeFn      func(sourceID, customerID, bookingID string, amountCents int64) (*domain.Payment, error)
	captureFn        func(paymentID string, amountCents int64) (*domain.Payment, error)
	cancelFn         func(paymentID string) (*domain.Payment, error)
	chargeFn         func(cardID, customerID, bookingID string, amountCents int64, idempotencyKey string) (*domain.Payment, error)
	refundFn         func(paymentID string, amountCents int64) (*domain.Refund, error)
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeGateway) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeGateway) CreateCustomer(context.Context, string, string, string) (string, error) {
	f.record("create_customer")
	if f.createCustomerFn != nil {
		return f.createCustomerFn()
	}
	return "cust_1", nil
}

func (f *fakeGateway) CreateCard(context.Context, string, string, string) (domain.CardMetadata, error) {
	f.record("create_card")
	if f.createCardFn != nil {
		return f.createCardFn()
	}
	return domain.CardMetadata{CustomerID: "cust_1", CardID: "card_1", Brand: "VISA", Last4: "1111"}, nil
}

func (f *fakeGateway) Authorize(_ context.Context, sourceID, customerID, bookingID string, amountCents int64) (*domain.Payment, error) {
	f.record("authorize")
	if f.authorizeFn != nil {
		return f.authorizeFn(sourceID, customerID, bookingID, amountCents)
	}
	return &domain.Payment{ID: "pay_1", Status: "APPROVED", AmountCents: amountCents}, nil
}

func (f *fakeGateway) Capture(_ context.Context, paymentID string, amountCents int64) (*domain.Payment, error) {
	f.record("capture")
	if f.captureFn != nil {
		return f.captureFn(paymentID, amountCents)
	}
	return &domain.Payment{ID: paymentID, Status: "COMPLETED", AmountCents: amountCents}, nil
}

func (f *fakeGateway) Cancel(_ context.Context, paymentID string) (*domain.Payment, error) {
	f.record("cancel")
	if f.cancelFn != nil {
		return f.cancelFn(paymentID)
	}
	return &domain.Payment{ID: paymentID, Status: "CANCELED"}, nil
}

func (f *fakeGateway) ChargeImmediate(_ context.Context, cardID, customerID, bookingID string, amountCents int64, idempotencyKey string) (*domain.Payment, error) {
	f.record("charge_immediate")
	if f.chargeFn != nil {
		return f.chargeFn(cardID, customerID, bookingID, amountCents, idempotencyKey)
	}
	return &domain.Payment{ID: "pay_direct_1", Status: "COMPLETED", AmountCents: amountCents}, nil
}

func (f *fakeGateway) Refund(_ context.Context, paymentID string, amountCents int64, _, _ string) (*domain.Refund, error) {
	f.record("refund")
	if f.refundFn != nil {
		return f.refundFn(paymentID, amountCents)
	}
	return &domain.Refund{ID: "ref_1", Status: "COMPLETED", AmountCents: amountCents}, nil
}

type fakeCorrelator struct {
	mu        sync.Mutex
	responses map[string][]byte
	err       error
	requests  []domain.Message
}

func (f *fakeCorrelator) Call(_ context.Context, requestTopic, _ string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, domain.Message{Topic: requestTopic, Payload: payload})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if raw, ok := f.responses[requestTopic]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("no scripted response for topic %s", requestTopic)
}

func newTestUsecase(repo domain.SessionRepository, gateway domain.PaymentGateway, correlator domain.CorrelatorPort) *DefaultSessionUsecase {
	topics := NewTopics("home1", "charger1")
	tokenSeq := 0
	var mu sync.Mutex
	return NewDefaultSessionUsecase(
		repo,
		gateway,
		correlator,
		bus.NewTopicQueues(topics.Subscribed()...),
		nil,
		testMetrics,
		NewPendingTokens(),
		topics,
		"home1",
		"charger1",
		100,
		"sandbox",
		3,
		time.Millisecond,
		func() string {
			mu.Lock()
			defer mu.Unlock()
			tokenSeq++
			return fmt.Sprintf("token-%d", tokenSeq)
		},
	)
}

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/metrics"
)

type AdminUsecase interface {
	ListSessions(ctx context.Context, filters domain.SessionFilters, limit, offset int) ([]*domain.Session, error)
	GetSession(ctx context.Context, key string) (*domain.Session, error)
	GetAuditTrail(ctx context.Context, key string) ([]*domain.AuditEntry, error)

	Capture(ctx context.Context, actor, key string, amountCents int64) (*domain.Payment, error)
	Void(ctx context.Context, actor, key string) (*domain.Payment, error)
	Refund(ctx context.Context, actor, key string, amountCents int64, reason string) (*domain.Refund, error)
	Reauthorize(ctx context.Context, actor, key string, amountCents int64) (*domain.Payment, error)
	AddNote(ctx context.Context, actor, key, note string) error
	SoftDelete(ctx context.Context, actor, key string) error
}

type DefaultAdminUsecase struct {
	Repo    domain.SessionRepository
	Audit   domain.AuditLog
	Gateway domain.PaymentGateway
	Events  domain.SessionEventPort
	Metrics *metrics.SessionMetrics
}

func NewDefaultAdminUsecase(
	repo domain.SessionRepository,
	audit domain.AuditLog,
	gateway domain.PaymentGateway,
	events domain.SessionEventPort,
	adminMetrics *metrics.SessionMetrics,
) *DefaultAdminUsecase {
	return &DefaultAdminUsecase{
		Repo:    repo,
		Audit:   audit,
		Gateway: gateway,
		Events:  events,
		Metrics: adminMetrics,
	}
}

func (uc *DefaultAdminUsecase) ListSessions(ctx context.Context, filters domain.SessionFilters, limit, offset int) ([]*domain.Session, error) {
	return uc.Repo.List(ctx, filters, limit, offset)
}

func (uc *DefaultAdminUsecase) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	return uc.Repo.GetByKey(ctx, key)
}

func (uc *DefaultAdminUsecase) GetAuditTrail(ctx context.Context, key string) ([]*domain.AuditEntry, error) {
	return uc.Audit.ListByKey(ctx, key)
}

// Capture completes an AUTHORIZED hold at amountCents. Zero means the full
// authorized amount. A FAILED session may be retried here: with a payment
// reference the original hold is captured, without one the stored card is
// charged directly with a fresh idempotency key.
func (uc *DefaultAdminUsecase) Capture(ctx context.Context, actor, key string, amountCents int64) (*domain.Payment, error) {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if before.State != domain.StateAuthorized && before.State != domain.StateFailed {
		return nil, fmt.Errorf("%w: state is %s, can only capture AUTHORIZED or FAILED", domain.ErrWrongState, before.State)
	}
	if amountCents <= 0 {
		amountCents = before.AuthorizedAmountCents
	}

	var payment *domain.Payment
	switch {
	case before.PaymentID != "":
		payment, err = uc.Gateway.Capture(ctx, before.PaymentID, amountCents)
	case before.State == domain.StateFailed && before.Card.CardID != "" && before.Card.CustomerID != "":
		idem := fmt.Sprintf("adm-%s-%s", actor, uuid.NewString())
		payment, err = uc.Gateway.ChargeImmediate(ctx, before.Card.CardID, before.Card.CustomerID, before.BookingID, amountCents, idem)
	default:
		return nil, fmt.Errorf("%w: no payment id or stored card to capture", domain.ErrMissingReference)
	}
	if err != nil {
		uc.auditFailure(ctx, actor, "capture", key, "", before, err)
		return nil, err
	}

	capturedID := payment.ID
	if capturedID == "" {
		capturedID = before.PaymentID
	}
	if err := uc.Repo.MarkCaptured(ctx, key, capturedID, amountCents); err != nil {
		return nil, err
	}
	uc.auditSuccess(ctx, actor, "capture", key, "", before, payment)
	uc.publishEvent(before, domain.StateCaptured, amountCents, capturedID, "")
	return payment, nil
}

// Void cancels an AUTHORIZED hold; the session moves to CANCELED, not VOIDED,
// to mark it as an operator decision rather than a settlement outcome.
func (uc *DefaultAdminUsecase) Void(ctx context.Context, actor, key string) (*domain.Payment, error) {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if before.PaymentID == "" {
		return nil, fmt.Errorf("%w: no payment id to void", domain.ErrMissingReference)
	}
	if before.State != domain.StateAuthorized {
		return nil, fmt.Errorf("%w: state is %s, can only void AUTHORIZED", domain.ErrWrongState, before.State)
	}

	payment, err := uc.Gateway.Cancel(ctx, before.PaymentID)
	if err != nil {
		uc.auditFailure(ctx, actor, "void", key, "", before, err)
		return nil, err
	}

	if err := uc.Repo.MarkCanceled(ctx, key, before.PaymentID); err != nil {
		return nil, err
	}
	uc.auditSuccess(ctx, actor, "void", key, "", before, payment)
	uc.publishEvent(before, domain.StateCanceled, 0, before.PaymentID, "")
	return payment, nil
}

// Refund issues a refund against a CAPTURED payment. amountCents <= 0 means
// a full refund.
func (uc *DefaultAdminUsecase) Refund(ctx context.Context, actor, key string, amountCents int64, reason string) (*domain.Refund, error) {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if before.PaymentID == "" {
		return nil, fmt.Errorf("%w: no payment id to refund", domain.ErrMissingReference)
	}
	if before.State != domain.StateCaptured {
		return nil, fmt.Errorf("%w: state is %s, can only refund CAPTURED", domain.ErrWrongState, before.State)
	}

	refundTarget := before.CapturePaymentID
	if refundTarget == "" {
		refundTarget = before.PaymentID
	}

	refund, err := uc.Gateway.Refund(ctx, refundTarget, amountCents, reason, uuid.NewString())
	if err != nil {
		uc.auditFailure(ctx, actor, "refund", key, reason, before, err)
		return nil, err
	}

	refundID := refund.ID
	if refundID == "" {
		refundID = refundTarget
	}
	refundedCents := refund.AmountCents
	if refundedCents == 0 {
		refundedCents = amountCents
	}
	if err := uc.Repo.MarkRefunded(ctx, key, refundID, refundedCents); err != nil {
		return nil, err
	}
	uc.auditSuccess(ctx, actor, "refund", key, reason, before, refund)
	uc.publishEvent(before, domain.StateRefunded, refundedCents, refundID, "")
	return refund, nil
}

// Reauthorize places a fresh hold on the stored card after a capture,
// resetting the session for another settlement cycle. A fresh idempotency
// key keeps the gateway from deduplicating against the original hold.
func (uc *DefaultAdminUsecase) Reauthorize(ctx context.Context, actor, key string, amountCents int64) (*domain.Payment, error) {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if before.State != domain.StateCaptured {
		return nil, fmt.Errorf("%w: state is %s, can only reauthorize CAPTURED", domain.ErrWrongState, before.State)
	}
	if before.Card.CardID == "" || before.Card.CustomerID == "" {
		return nil, fmt.Errorf("%w: no stored card or customer to reauthorize", domain.ErrMissingReference)
	}

	prefix := key
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	reauthIdem := fmt.Sprintf("reauth-%s-%s", prefix, uuid.NewString()[:8])

	payment, err := uc.Gateway.Authorize(ctx, before.Card.CardID, before.Card.CustomerID, reauthIdem, amountCents)
	if err != nil {
		uc.auditFailure(ctx, actor, "reauthorize", key, "", before, err)
		return nil, err
	}

	if err := uc.Repo.MarkAuthorized(ctx, key, payment.ID, amountCents, before.Card); err != nil {
		return nil, err
	}
	uc.auditSuccess(ctx, actor, "reauthorize", key, "", before, payment)
	uc.publishEvent(before, domain.StateAuthorized, amountCents, payment.ID, "")
	return payment, nil
}

func (uc *DefaultAdminUsecase) AddNote(ctx context.Context, actor, key, note string) error {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if err := uc.Repo.AddNote(ctx, key, note); err != nil {
		return err
	}
	uc.auditSuccess(ctx, actor, "note", key, note, before, nil)
	return nil
}

func (uc *DefaultAdminUsecase) SoftDelete(ctx context.Context, actor, key string) error {
	before, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if err := uc.Repo.SoftDelete(ctx, key); err != nil {
		return err
	}
	uc.auditSuccess(ctx, actor, "soft_delete", key, "", before, nil)
	return nil
}

func (uc *DefaultAdminUsecase) auditSuccess(ctx context.Context, actor, action, key, reason string, before *domain.Session, result any) {
	after, err := uc.Repo.GetByKey(ctx, key)
	if err != nil {
		slog.Error("audit: failed to load post-action session", "key", key, "error", err.Error())
	}
	entry := &domain.AuditEntry{
		Actor:          actor,
		Action:         action,
		IdempotencyKey: key,
		Reason:         reason,
		BeforeJSON:     mustJSON(before),
		AfterJSON:      mustJSON(after),
		ResultJSON:     mustJSON(result),
	}
	if err := uc.Audit.Append(ctx, entry); err != nil {
		slog.Error("audit: failed to append entry", "action", action, "key", key, "error", err.Error())
	}
	uc.Metrics.RecordAdminAction(action, "ok")
}

// auditFailure records the attempt even though the gateway call failed, so
// the trail shows what the operator tried.
func (uc *DefaultAdminUsecase) auditFailure(ctx context.Context, actor, action, key, reason string, before *domain.Session, gatewayErr error) {
	entry := &domain.AuditEntry{
		Actor:          actor,
		Action:         action,
		IdempotencyKey: key,
		Reason:         reason,
		BeforeJSON:     mustJSON(before),
		ResultJSON:     mustJSON(map[string]string{"error": gatewayErr.Error()}),
	}
	if err := uc.Audit.Append(ctx, entry); err != nil {
		slog.Error("audit: failed to append entry", "action", action, "key", key, "error", err.Error())
	}
	uc.Metrics.RecordAdminAction(action, "error")
}

func (uc *DefaultAdminUsecase) publishEvent(before *domain.Session, state domain.SessionState, amountCents int64, paymentID, errText string) {
	if uc.Events == nil {
		return
	}
	event := domain.SessionEvent{
		IdempotencyKey: before.IdempotencyKey,
		ChargerID:      before.ChargerID,
		BookingID:      before.BookingID,
		State:          string(state),
		AmountCents:    amountCents,
		PaymentID:      paymentID,
		Error:          errText,
	}
	go func() {
		if err := uc.Events.PublishSessionEvent(event); err != nil {
			slog.Error("failed to publish session event",
				"key", event.IdempotencyKey,
				"state", event.State,
				"error", err.Error(),
			)
		}
	}()
}

func mustJSON(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(raw)
}

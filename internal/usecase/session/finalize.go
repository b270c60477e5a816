package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

type finalizePayload struct {
	BookingID        string `json:"booking_id"`
	FinalAmountCents *int64 `json:"final_amount_cents"`
}

// RunFinalizeConsumer drains the finalize topic queue until ctx is done.
// Each message settles one session: void, capture, or void-and-recharge.
func (uc *DefaultSessionUsecase) RunFinalizeConsumer(ctx context.Context) {
	slog.Info("finalize consumer starting", "topic", uc.Topics.FinalizeSession)
	ch := uc.Queues.Channel(uc.Topics.FinalizeSession)
	if ch == nil {
		slog.Error("finalize topic has no queue, consumer exiting", "topic", uc.Topics.FinalizeSession)
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("finalize consumer shutting down")
			return
		case raw := <-ch:
			uc.handleFinalize(ctx, raw)
		}
	}
}

func (uc *DefaultSessionUsecase) handleFinalize(ctx context.Context, raw []byte) {
	var payload finalizePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Error("finalize: invalid JSON payload", "payload", string(raw), "error", err.Error())
		return
	}
	if payload.BookingID == "" || payload.FinalAmountCents == nil {
		slog.Error("finalize: missing booking_id or final_amount_cents", "payload", string(raw))
		return
	}
	finalCents := *payload.FinalAmountCents

	slog.Info("finalize message received",
		"booking_id", payload.BookingID,
		"final_amount_cents", finalCents,
	)

	row, err := uc.Repo.GetByBookingID(ctx, payload.BookingID)
	if err != nil {
		slog.Warn("finalize: no session for booking, ignoring",
			"booking_id", payload.BookingID,
			"error", err.Error(),
		)
		return
	}

	key := row.IdempotencyKey

	// Redelivered finalize for an already-settled session is a no-op.
	if row.State.Settled() {
		slog.Info("finalize: session already settled, skipping",
			"key", key,
			"state", string(row.State),
		)
		return
	}
	if row.State != domain.StateAuthorized {
		slog.Warn("finalize: session not in AUTHORIZED, proceeding anyway",
			"key", key,
			"state", string(row.State),
		)
	}

	if row.PaymentID == "" {
		slog.Error("finalize: session has no payment reference, cannot settle", "key", key)
		uc.markFailed(ctx, row, "missing payment reference for capture")
		return
	}

	switch {
	case finalCents == 0:
		uc.finalizeVoid(ctx, row)
	case finalCents > row.AuthorizedAmountCents:
		uc.finalizeOvercharge(ctx, row, finalCents)
	default:
		uc.finalizeCapture(ctx, row, finalCents)
	}
}

// finalizeVoid releases the hold when no energy was consumed.
func (uc *DefaultSessionUsecase) finalizeVoid(ctx context.Context, row *domain.Session) {
	slog.Info("finalize: zero usage, voiding pre-auth", "payment_id", row.PaymentID)

	var voided *domain.Payment
	err := uc.retryGateway(ctx, "void", func() error {
		var callErr error
		voided, callErr = uc.Gateway.Cancel(ctx, row.PaymentID)
		return callErr
	})
	if err != nil {
		uc.markFailed(ctx, row, err.Error())
		return
	}

	voidedID := voided.ID
	if voidedID == "" {
		voidedID = row.PaymentID
	}
	if err := uc.Repo.MarkVoided(ctx, row.IdempotencyKey, voidedID); err != nil {
		slog.Error("finalize: failed to persist VOIDED", "key", row.IdempotencyKey, "error", err.Error())
		return
	}
	slog.Info("finalize: voided", "key", row.IdempotencyKey, "payment_id", voidedID)
	uc.Metrics.RecordSessionFinalized(uc.ChargerID, "voided", 0)
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: row.IdempotencyKey,
		ChargerID:      row.ChargerID,
		BookingID:      row.BookingID,
		State:          string(domain.StateVoided),
		PaymentID:      voidedID,
	})
}

// finalizeCapture completes the hold at the final amount.
func (uc *DefaultSessionUsecase) finalizeCapture(ctx context.Context, row *domain.Session, finalCents int64) {
	var captured *domain.Payment
	err := uc.retryGateway(ctx, "capture", func() error {
		var callErr error
		captured, callErr = uc.Gateway.Capture(ctx, row.PaymentID, finalCents)
		return callErr
	})
	if err != nil {
		uc.markFailed(ctx, row, err.Error())
		return
	}

	capturedID := captured.ID
	if capturedID == "" {
		capturedID = row.PaymentID
	}
	capturedCents := captured.AmountCents
	if capturedCents == 0 {
		capturedCents = finalCents
	}
	if err := uc.Repo.MarkCaptured(ctx, row.IdempotencyKey, capturedID, capturedCents); err != nil {
		slog.Error("finalize: failed to persist CAPTURED", "key", row.IdempotencyKey, "error", err.Error())
		return
	}
	slog.Info("finalize: captured",
		"key", row.IdempotencyKey,
		"captured_id", capturedID,
		"amount_cents", capturedCents,
	)
	uc.Metrics.RecordSessionFinalized(uc.ChargerID, "captured", capturedCents)
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: row.IdempotencyKey,
		ChargerID:      row.ChargerID,
		BookingID:      row.BookingID,
		State:          string(domain.StateCaptured),
		AmountCents:    capturedCents,
		PaymentID:      capturedID,
	})
}

// finalizeOvercharge handles usage above the hold: release the hold
// (best effort) and issue a fresh immediate charge for the full amount
// against the stored card.
func (uc *DefaultSessionUsecase) finalizeOvercharge(ctx context.Context, row *domain.Session, finalCents int64) {
	slog.Warn("finalize: final amount exceeds pre-auth, voiding and recharging",
		"key", row.IdempotencyKey,
		"final_amount_cents", finalCents,
		"authorized_amount_cents", row.AuthorizedAmountCents,
	)

	// An unreleased hold expires on its own, so a failed void is not fatal.
	err := uc.retryGateway(ctx, "void", func() error {
		_, callErr := uc.Gateway.Cancel(ctx, row.PaymentID)
		return callErr
	})
	if err != nil {
		slog.Warn("finalize: pre-auth void failed, hold will expire", "error", err.Error())
	}

	if row.Card.CardID == "" || row.Card.CustomerID == "" {
		slog.Error("finalize: missing stored card or customer for direct charge", "key", row.IdempotencyKey)
		uc.markFailed(ctx, row, fmt.Sprintf(
			"overcharge: missing card_id=%q or customer_id=%q",
			row.Card.CardID, row.Card.CustomerID,
		))
		return
	}

	// Deterministic key so the gateway deduplicates retried charges.
	chargeIdem := "fin:" + row.IdempotencyKey
	if len(chargeIdem) > 45 {
		chargeIdem = chargeIdem[:45]
	}

	var charged *domain.Payment
	err = uc.retryGateway(ctx, "direct charge", func() error {
		var callErr error
		charged, callErr = uc.Gateway.ChargeImmediate(
			ctx, row.Card.CardID, row.Card.CustomerID, row.BookingID, finalCents, chargeIdem,
		)
		return callErr
	})
	if err != nil {
		uc.markFailed(ctx, row, err.Error())
		return
	}

	chargedCents := charged.AmountCents
	if chargedCents == 0 {
		chargedCents = finalCents
	}
	if err := uc.Repo.MarkCaptured(ctx, row.IdempotencyKey, charged.ID, chargedCents); err != nil {
		slog.Error("finalize: failed to persist CAPTURED", "key", row.IdempotencyKey, "error", err.Error())
		return
	}
	slog.Info("finalize: overcharge captured",
		"key", row.IdempotencyKey,
		"charged_id", charged.ID,
		"amount_cents", chargedCents,
	)
	uc.Metrics.RecordSessionFinalized(uc.ChargerID, "overcharge_captured", chargedCents)
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: row.IdempotencyKey,
		ChargerID:      row.ChargerID,
		BookingID:      row.BookingID,
		State:          string(domain.StateCaptured),
		AmountCents:    chargedCents,
		PaymentID:      charged.ID,
	})
}

// retryGateway runs call up to MaxRetries times with a fixed delay between
// attempts. Declined errors abort immediately: retrying them cannot succeed.
// The exhaustion error names the operation and attempt count.
func (uc *DefaultSessionUsecase) retryGateway(ctx context.Context, operation string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= uc.MaxRetries; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		uc.recordGatewayError(operation, lastErr)
		slog.Warn("finalize: gateway attempt failed",
			"operation", operation,
			"attempt", attempt,
			"max", uc.MaxRetries,
			"error", lastErr.Error(),
		)
		if domain.IsDeclined(lastErr) {
			return fmt.Errorf("%s failed: %w", operation, lastErr)
		}
		if attempt < uc.MaxRetries {
			uc.Metrics.RecordFinalizeRetry(operation)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(uc.RetryDelay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, uc.MaxRetries, lastErr)
}

func (uc *DefaultSessionUsecase) markFailed(ctx context.Context, row *domain.Session, reason string) {
	if err := uc.Repo.MarkFailed(ctx, row.IdempotencyKey, reason); err != nil {
		slog.Error("finalize: failed to persist FAILED", "key", row.IdempotencyKey, "error", err.Error())
		return
	}
	uc.Metrics.RecordSessionFinalized(uc.ChargerID, "failed", 0)
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: row.IdempotencyKey,
		ChargerID:      row.ChargerID,
		BookingID:      row.BookingID,
		State:          string(domain.StateFailed),
		Error:          reason,
	})
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

// Digital wallet tokens are one-time-use and cannot be stored as a card on
// file; they go straight to the authorization call.
var digitalWalletMethods = map[string]bool{
	"APPLE_PAY":  true,
	"GOOGLE_PAY": true,
}

type authorizeRequest struct {
	Timestamp   string `json:"timestamp"`
	HomeID      string `json:"home_id"`
	ChargerID   string `json:"charger_id"`
	BookingID   string `json:"booking_id"`
	PaymentID   string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
}

type authorizeResponse struct {
	Success bool `json:"success"`
}

// SubmitPayment consumes the one-time token, places the pre-authorization
// hold on the gateway and tells the charger to enable. When an error occurs
// after a payment reference exists, the returned output is still populated
// so callers can surface the reference to the user.
func (uc *DefaultSessionUsecase) SubmitPayment(ctx context.Context, input *SubmitPaymentInput) (*SubmitPaymentOutput, error) {
	method := strings.ToUpper(strings.TrimSpace(input.PaymentMethod))
	isWallet := digitalWalletMethods[method]

	booking, ok := uc.Pending.Consume(input.SessionToken)
	if !ok {
		// Pending tokens live in memory; recover from the store after a
		// restart as long as the session has not already been authorized.
		row, err := uc.Repo.GetByToken(ctx, input.SessionToken)
		if err != nil || row.State.Protected() {
			slog.Warn("unknown or already-used session token")
			return nil, domain.ErrTokenNotFound
		}
		booking = PendingBooking{BookingID: row.BookingID, AmountCents: row.AuthorizedAmountCents}
		slog.Info("recovered session from store", "booking_id", row.BookingID)
	}

	key := domain.SessionKey(uc.ChargerID, booking.BookingID)
	slog.Info("payment submitted",
		"booking_id", booking.BookingID,
		"amount_cents", booking.AmountCents,
		"method", method,
	)

	// Idempotent replay: return the stored result without touching the
	// gateway again.
	existing, err := uc.Repo.GetByKey(ctx, key)
	if err != nil && err != domain.ErrSessionNotFound {
		return nil, err
	}
	if existing != nil && existing.State.Protected() {
		slog.Info("idempotent return for already-authorized session",
			"key", key,
			"state", string(existing.State),
		)
		return &SubmitPaymentOutput{
			BookingID:   booking.BookingID,
			PaymentID:   existing.PaymentID,
			CardID:      existing.Card.CardID,
			AmountCents: existing.AuthorizedAmountCents,
		}, nil
	}

	err = uc.Repo.Upsert(ctx, &domain.Session{
		IdempotencyKey:        key,
		ChargerID:             uc.ChargerID,
		BookingID:             booking.BookingID,
		SessionToken:          input.SessionToken,
		State:                 domain.StateAuthRequested,
		AuthorizedAmountCents: booking.AmountCents,
		GatewayEnvironment:    uc.GatewayEnvironment,
	})
	if err != nil {
		return nil, err
	}

	var payment *domain.Payment
	var card domain.CardMetadata

	if isWallet {
		payment, err = uc.authorizeWallet(ctx, key, input, booking, method)
		if err != nil {
			return nil, err
		}
		card = payment.Card
		if card.Brand == "" {
			card.Brand = method
		}
	} else {
		payment, card, err = uc.authorizeStoredCard(ctx, key, input, booking)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("payment authorized",
		"booking_id", booking.BookingID,
		"payment_id", payment.ID,
		"status", payment.Status,
		"method", method,
	)

	if err := uc.Repo.MarkAuthorized(ctx, key, payment.ID, booking.AmountCents, card); err != nil {
		return nil, err
	}
	paymentKind := "card"
	if isWallet {
		paymentKind = "wallet"
	}
	uc.Metrics.RecordSessionAuthorized(uc.ChargerID, paymentKind, booking.AmountCents)
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: key,
		ChargerID:      uc.ChargerID,
		BookingID:      booking.BookingID,
		State:          string(domain.StateAuthorized),
		AmountCents:    booking.AmountCents,
		PaymentID:      payment.ID,
	})

	out := &SubmitPaymentOutput{
		BookingID:   booking.BookingID,
		PaymentID:   payment.ID,
		CardID:      card.CardID,
		AmountCents: booking.AmountCents,
	}

	// Payment is authorized; now tell the charger to enable. Failures from
	// here on must surface the payment reference to the user.
	if err := uc.notifyCharger(ctx, booking, payment.ID); err != nil {
		return out, err
	}

	return out, nil
}

func (uc *DefaultSessionUsecase) authorizeWallet(ctx context.Context, key string, input *SubmitPaymentInput, booking PendingBooking, method string) (*domain.Payment, error) {
	slog.Info("digital wallet payment, skipping card on file", "method", method)
	payment, err := uc.Gateway.Authorize(ctx, input.SourceID, "", booking.BookingID, booking.AmountCents)
	if err != nil {
		return nil, uc.failAuthorization(ctx, key, "authorize", err)
	}
	return payment, nil
}

func (uc *DefaultSessionUsecase) authorizeStoredCard(ctx context.Context, key string, input *SubmitPaymentInput, booking PendingBooking) (*domain.Payment, domain.CardMetadata, error) {
	customerID, err := uc.Gateway.CreateCustomer(ctx, booking.BookingID, input.GivenName, input.FamilyName)
	if err != nil {
		return nil, domain.CardMetadata{}, uc.failAuthorization(ctx, key, "create_customer", err)
	}

	card, err := uc.Gateway.CreateCard(ctx, input.SourceID, customerID, booking.BookingID)
	if err != nil {
		return nil, domain.CardMetadata{}, uc.failAuthorization(ctx, key, "create_card", err)
	}
	slog.Info("card stored", "booking_id", booking.BookingID, "card_id", card.CardID)

	payment, err := uc.Gateway.Authorize(ctx, card.CardID, customerID, booking.BookingID, booking.AmountCents)
	if err != nil {
		return nil, domain.CardMetadata{}, uc.failAuthorization(ctx, key, "authorize", err)
	}
	return payment, card, nil
}

// failAuthorization persists FAILED with the gateway's message and passes the
// original error through for the handler to classify.
func (uc *DefaultSessionUsecase) failAuthorization(ctx context.Context, key, operation string, gatewayErr error) error {
	slog.Error("gateway call failed during authorization",
		"operation", operation,
		"error", gatewayErr.Error(),
	)
	uc.recordGatewayError(operation, gatewayErr)
	if err := uc.Repo.MarkFailed(ctx, key, gatewayErr.Error()); err != nil {
		slog.Error("failed to persist FAILED state", "key", key, "error", err.Error())
	}
	uc.publishEvent(domain.SessionEvent{
		IdempotencyKey: key,
		ChargerID:      uc.ChargerID,
		State:          string(domain.StateFailed),
		Error:          gatewayErr.Error(),
	})
	return gatewayErr
}

func (uc *DefaultSessionUsecase) notifyCharger(ctx context.Context, booking PendingBooking, paymentID string) error {
	payload, err := json.Marshal(authorizeRequest{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		HomeID:      uc.HomeID,
		ChargerID:   uc.ChargerID,
		BookingID:   booking.BookingID,
		PaymentID:   paymentID,
		AmountCents: booking.AmountCents,
	})
	if err != nil {
		return err
	}

	began := time.Now()
	raw, err := uc.Correlator.Call(ctx, uc.Topics.AuthorizeSession, uc.Topics.AuthorizeResponse, payload)
	if err != nil {
		uc.recordCorrelatorFailure(err)
		return err
	}
	uc.Metrics.RecordChargerRoundTrip(uc.ChargerID, "authorize_session", time.Since(began).Seconds())

	var resp authorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("authorize response was not valid JSON", "payload", string(raw))
	}
	if !resp.Success {
		slog.Error("charger refused the session", "response", string(raw))
		return fmt.Errorf("%w: %s", domain.ErrChargerRefused, string(raw))
	}
	return nil
}

func (uc *DefaultSessionUsecase) recordGatewayError(operation string, err error) {
	kind := string(domain.GatewayTransient)
	if domain.IsDeclined(err) {
		kind = string(domain.GatewayDeclined)
	}
	uc.Metrics.RecordGatewayError(operation, kind)
}

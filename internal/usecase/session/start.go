package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

type bookingRequest struct {
	Timestamp string `json:"timestamp"`
	HomeID    string `json:"home_id"`
	ChargerID string `json:"charger_id"`
}

type bookingResponse struct {
	BookingID string `json:"booking_id"`
	// Dollars on the wire, e.g. 1.50. Converted to cents here.
	InitialAuthorizationAmount *float64 `json:"initial_authorization_amount"`
}

// Start reserves a charging slot: one request/response round trip to the
// charger, then a session row in AWAITING_PAYMENT_INFO with a fresh one-time
// token. A booking that is already AUTHORIZED or CAPTURED short-circuits
// without minting a token.
func (uc *DefaultSessionUsecase) Start(ctx context.Context) (*StartOutput, error) {
	payload, err := json.Marshal(bookingRequest{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		HomeID:    uc.HomeID,
		ChargerID: uc.ChargerID,
	})
	if err != nil {
		return nil, err
	}

	began := time.Now()
	raw, err := uc.Correlator.Call(ctx, uc.Topics.RequestSession, uc.Topics.BookingResponse, payload)
	if err != nil {
		uc.recordCorrelatorFailure(err)
		return nil, err
	}
	uc.Metrics.RecordChargerRoundTrip(uc.ChargerID, "request_session", time.Since(began).Seconds())

	var resp bookingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("booking response was not valid JSON", "payload", string(raw))
	}

	bookingID := resp.BookingID
	if bookingID == "" {
		bookingID = "unknown"
	}

	amountCents := uc.DefaultAmountCents
	if resp.InitialAuthorizationAmount != nil {
		amountCents = int64(math.Round(*resp.InitialAuthorizationAmount * 100))
	}

	key := domain.SessionKey(uc.ChargerID, bookingID)

	existing, err := uc.Repo.GetByKey(ctx, key)
	if err != nil && err != domain.ErrSessionNotFound {
		return nil, err
	}
	if existing != nil && existing.State.Protected() {
		slog.Info("session already authorized, skipping new token",
			"key", key,
			"state", string(existing.State),
		)
		return &StartOutput{
			BookingID:         bookingID,
			AmountCents:       existing.AuthorizedAmountCents,
			AlreadyAuthorized: true,
			Existing:          existing,
		}, nil
	}

	token := uc.tokenGen()
	uc.Pending.Put(token, PendingBooking{BookingID: bookingID, AmountCents: amountCents})
	slog.Info("session token minted",
		"booking_id", bookingID,
		"amount_cents", amountCents,
	)

	err = uc.Repo.Upsert(ctx, &domain.Session{
		IdempotencyKey:        key,
		ChargerID:             uc.ChargerID,
		BookingID:             bookingID,
		SessionToken:          token,
		State:                 domain.StateAwaitingPaymentInfo,
		AuthorizedAmountCents: amountCents,
		GatewayEnvironment:    uc.GatewayEnvironment,
	})
	if err != nil {
		return nil, err
	}

	uc.Metrics.RecordSessionStarted(uc.ChargerID)

	return &StartOutput{
		BookingID:    bookingID,
		AmountCents:  amountCents,
		SessionToken: token,
	}, nil
}

func (uc *DefaultSessionUsecase) recordCorrelatorFailure(err error) {
	switch err {
	case domain.ErrBusy:
		uc.Metrics.RecordChargerBusy(uc.ChargerID)
	case domain.ErrTimeout:
		uc.Metrics.RecordChargerTimeout(uc.ChargerID)
	}
}

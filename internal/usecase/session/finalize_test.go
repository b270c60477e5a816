package session

import (
	"context"
	"strings"
	"testing"

	"github.com/voltgate/ev-session-service/internal/domain"
)

func authorizedSession(amountCents int64) *domain.Session {
	return &domain.Session{
		IdempotencyKey:        "ev:charger1:b1",
		ChargerID:             "charger1",
		BookingID:             "b1",
		State:                 domain.StateAuthorized,
		AuthorizedAmountCents: amountCents,
		PaymentID:             "pay_1",
		Card: domain.CardMetadata{
			CustomerID: "cust_1",
			CardID:     "card_1",
			Brand:      "VISA",
			Last4:      "1111",
		},
	}
}

func TestFinalizeZeroAmountVoidsHold(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":0}`))

	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateVoided {
		t.Fatalf("expected VOIDED, got %s", row.State)
	}
	if row.CapturedAmountCents == nil || *row.CapturedAmountCents != 0 {
		t.Fatalf("expected captured amount 0, got %v", row.CapturedAmountCents)
	}
	if gateway.callCount("cancel") != 1 {
		t.Fatalf("expected 1 cancel call, got %d", gateway.callCount("cancel"))
	}
}

func TestFinalizeCapturesWithinAuthorization(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":4800}`))

	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateCaptured {
		t.Fatalf("expected CAPTURED, got %s (last_error=%s)", row.State, row.LastError)
	}
	if row.CapturedAmountCents == nil || *row.CapturedAmountCents != 4800 {
		t.Fatalf("expected captured 4800, got %v", row.CapturedAmountCents)
	}
	if gateway.callCount("capture") != 1 {
		t.Fatalf("expected 1 capture call, got %d", gateway.callCount("capture"))
	}
	if gateway.callCount("cancel") != 0 {
		t.Fatal("capture path must not void the hold")
	}
}

func TestFinalizeExactAmountCaptures(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":5000}`))

	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateCaptured {
		t.Fatalf("expected CAPTURED at exact authorized amount, got %s", row.State)
	}
	if gateway.callCount("charge_immediate") != 0 {
		t.Fatal("exact amount must use the capture path, not a direct charge")
	}
}

func TestFinalizeOverchargeVoidsAndRecharges(t *testing.T) {
	repo := newFakeRepo(authorizedSession(500))
	var gotIdem string
	var gotAmount int64
	gateway := &fakeGateway{
		chargeFn: func(cardID, customerID, bookingID string, amountCents int64, idempotencyKey string) (*domain.Payment, error) {
			gotIdem = idempotencyKey
			gotAmount = amountCents
			return &domain.Payment{ID: "pay_direct_1", Status: "COMPLETED", AmountCents: amountCents}, nil
		},
	}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":800}`))

	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateCaptured {
		t.Fatalf("expected CAPTURED, got %s (last_error=%s)", row.State, row.LastError)
	}
	if gotAmount != 800 {
		t.Fatalf("expected direct charge for the full 800 cents, got %d", gotAmount)
	}
	if row.CapturePaymentID != "pay_direct_1" {
		t.Fatalf("expected the new charge reference, got %s", row.CapturePaymentID)
	}
	if gateway.callCount("cancel") != 1 {
		t.Fatalf("expected the hold to be voided once, got %d", gateway.callCount("cancel"))
	}
	if !strings.HasPrefix(gotIdem, "fin:ev:charger1:b1") || len(gotIdem) > 45 {
		t.Fatalf("unexpected idempotency key %q", gotIdem)
	}
}

func TestFinalizeOverchargeSurvivesVoidFailure(t *testing.T) {
	repo := newFakeRepo(authorizedSession(500))
	gateway := &fakeGateway{
		cancelFn: func(string) (*domain.Payment, error) {
			return nil, &domain.GatewayError{Kind: domain.GatewayTransient, Message: "timeout"}
		},
	}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":800}`))

	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateCaptured {
		t.Fatalf("void failure must not block the direct charge, got %s", row.State)
	}
	if gateway.callCount("charge_immediate") != 1 {
		t.Fatalf("expected 1 direct charge, got %d", gateway.callCount("charge_immediate"))
	}
}

func TestFinalizeOverchargeMissingCardFails(t *testing.T) {
	row := authorizedSession(500)
	row.Card = domain.CardMetadata{}
	repo := newFakeRepo(row)
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":800}`))

	got := repo.get("ev:charger1:b1")
	if got.State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}
	if gateway.callCount("charge_immediate") != 0 {
		t.Fatal("must not charge without a stored card")
	}
}

func TestFinalizeRetriesTransientThenFails(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{
		captureFn: func(string, int64) (*domain.Payment, error) {
			return nil, &domain.GatewayError{Kind: domain.GatewayTransient, Status: 503, Message: "gateway down"}
		},
	}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":100}`))

	if got := gateway.callCount("capture"); got != 3 {
		t.Fatalf("expected 3 capture attempts, got %d", got)
	}
	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", row.State)
	}
	if !strings.Contains(row.LastError, "after 3 attempts") {
		t.Fatalf("error must mention the attempt count, got %q", row.LastError)
	}
}

func TestFinalizeDeclinedAbortsRetryLoop(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{
		captureFn: func(string, int64) (*domain.Payment, error) {
			return nil, &domain.GatewayError{Kind: domain.GatewayDeclined, Status: 402, Message: "card expired"}
		},
	}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":100}`))

	if got := gateway.callCount("capture"); got != 1 {
		t.Fatalf("declined must not be retried, got %d attempts", got)
	}
	row := repo.get("ev:charger1:b1")
	if row.State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", row.State)
	}
}

func TestFinalizeAlreadySettledIsNoOp(t *testing.T) {
	row := authorizedSession(5000)
	row.State = domain.StateCaptured
	repo := newFakeRepo(row)
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":100}`))

	if len(gateway.calls) != 0 {
		t.Fatalf("settled session must not touch the gateway, calls=%v", gateway.calls)
	}
	if repo.get("ev:charger1:b1").State != domain.StateCaptured {
		t.Fatal("settled state must not change")
	}
}

func TestFinalizeMissingPaymentReferenceFails(t *testing.T) {
	row := authorizedSession(5000)
	row.PaymentID = ""
	repo := newFakeRepo(row)
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1","final_amount_cents":100}`))

	got := repo.get("ev:charger1:b1")
	if got.State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}
	if len(gateway.calls) != 0 {
		t.Fatal("must not call the gateway without a payment reference")
	}
}

func TestFinalizeMalformedPayloadDropped(t *testing.T) {
	repo := newFakeRepo(authorizedSession(5000))
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`not json`))
	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"b1"}`))
	uc.handleFinalize(context.Background(), []byte(`{"final_amount_cents":100}`))

	if len(gateway.calls) != 0 {
		t.Fatalf("malformed payloads must be dropped, calls=%v", gateway.calls)
	}
	if repo.get("ev:charger1:b1").State != domain.StateAuthorized {
		t.Fatal("session must be untouched by malformed payloads")
	}
}

func TestFinalizeUnknownBookingIgnored(t *testing.T) {
	repo := newFakeRepo()
	gateway := &fakeGateway{}
	uc := newTestUsecase(repo, gateway, &fakeCorrelator{})

	uc.handleFinalize(context.Background(), []byte(`{"booking_id":"ghost","final_amount_cents":100}`))

	if len(gateway.calls) != 0 {
		t.Fatalf("unknown booking must be ignored, calls=%v", gateway.calls)
	}
}

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/bus"
	"github.com/voltgate/ev-session-service/internal/infrastructure/metrics"
)

type StartOutput struct {
	BookingID         string
	AmountCents       int64
	SessionToken      string
	AlreadyAuthorized bool
	Existing          *domain.Session
}

type SubmitPaymentInput struct {
	SessionToken  string
	SourceID      string
	GivenName     string
	FamilyName    string
	PaymentMethod string
}

type SubmitPaymentOutput struct {
	BookingID   string
	PaymentID   string
	CardID      string
	AmountCents int64
}

type SessionUsecase interface {
	Start(ctx context.Context) (*StartOutput, error)
	SubmitPayment(ctx context.Context, input *SubmitPaymentInput) (*SubmitPaymentOutput, error)
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	RunFinalizeConsumer(ctx context.Context)
}

type DefaultSessionUsecase struct {
	Repo       domain.SessionRepository
	Gateway    domain.PaymentGateway
	Correlator domain.CorrelatorPort
	Queues     *bus.TopicQueues
	Events     domain.SessionEventPort
	Metrics    *metrics.SessionMetrics
	Pending    *PendingTokens
	Topics     Topics

	HomeID             string
	ChargerID          string
	DefaultAmountCents int64
	GatewayEnvironment string
	MaxRetries         int
	RetryDelay         time.Duration

	tokenGen func() string
}

func NewDefaultSessionUsecase(
	repo domain.SessionRepository,
	gateway domain.PaymentGateway,
	correlator domain.CorrelatorPort,
	queues *bus.TopicQueues,
	events domain.SessionEventPort,
	sessionMetrics *metrics.SessionMetrics,
	pending *PendingTokens,
	topics Topics,
	homeID, chargerID string,
	defaultAmountCents int64,
	gatewayEnvironment string,
	maxRetries int,
	retryDelay time.Duration,
	tokenGen func() string,
) *DefaultSessionUsecase {
	return &DefaultSessionUsecase{
		Repo:               repo,
		Gateway:            gateway,
		Correlator:         correlator,
		Queues:             queues,
		Events:             events,
		Metrics:            sessionMetrics,
		Pending:            pending,
		Topics:             topics,
		HomeID:             homeID,
		ChargerID:          chargerID,
		DefaultAmountCents: defaultAmountCents,
		GatewayEnvironment: gatewayEnvironment,
		MaxRetries:         maxRetries,
		RetryDelay:         retryDelay,
		tokenGen:           tokenGen,
	}
}

func (uc *DefaultSessionUsecase) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	return uc.Repo.GetByToken(ctx, token)
}

// publishEvent ships a lifecycle event to the downstream feed without
// blocking the caller. Feed failures are logged, never surfaced.
func (uc *DefaultSessionUsecase) publishEvent(event domain.SessionEvent) {
	if uc.Events == nil {
		return
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

package background

import (
	"context"

	"github.com/voltgate/ev-session-service/internal/usecase/session"
)

type BackgroundTasks struct {
	SessionUsecase session.SessionUsecase
}

func NewBackgroundTasks(sessionUC session.SessionUsecase) *BackgroundTasks {
	return &BackgroundTasks{
		SessionUsecase: sessionUC,
	}
}

// StartAll launches the long-running consumers; they stop when ctx is done.
func (bt *BackgroundTasks) StartAll(ctx context.Context) {
	go bt.SessionUsecase.RunFinalizeConsumer(ctx)
}

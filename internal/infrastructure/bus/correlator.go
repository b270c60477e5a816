package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

// Correlator serialises the whole request→bus→response flow behind a single
// mutex. The bus carries no per-call correlation id, so correctness depends
// on topic + ordering: one outstanding round trip at a time, stale replies
// drained before each publish. Coarse on purpose; the request rate is one
// human interaction per charger.
type Correlator struct {
	mu      sync.Mutex
	pub     domain.PublisherPort
	queues  *TopicQueues
	timeout time.Duration
}

func NewCorrelator(pub domain.PublisherPort, queues *TopicQueues, timeout time.Duration) *Correlator {
	return &Correlator{pub: pub, queues: queues, timeout: timeout}
}

func (c *Correlator) Call(ctx context.Context, requestTopic, responseTopic string, payload []byte) ([]byte, error) {
	// Fail fast when a cycle is already in flight; callers are never queued.
	if !c.mu.TryLock() {
		return nil, domain.ErrBusy
	}
	defer c.mu.Unlock()

	c.queues.Drain(responseTopic)

	if err := c.pub.Publish(requestTopic, payload); err != nil {
		return nil, err
	}

	slog.Info("published bus request, waiting for response",
		"request_topic", requestTopic,
		"response_topic", responseTopic,
		"timeout", c.timeout.String(),
	)

	ch := c.queues.Channel(responseTopic)
	if ch == nil {
		return nil, domain.ErrTimeout
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case raw := <-ch:
		return raw, nil
	case <-timer.C:
		return nil, domain.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

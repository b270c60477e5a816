package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.Message
	err       error
	onPublish func(topic string)
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	f.published = append(f.published, domain.Message{Topic: topic, Payload: payload})
	f.mu.Unlock()
	if f.onPublish != nil {
		f.onPublish(topic)
	}
	return f.err
}

func TestCorrelatorReturnsResponse(t *testing.T) {
	queues := NewTopicQueues("req/response")
	pub := &fakePublisher{
		onPublish: func(string) {
			queues.Push("req/response", []byte(`{"booking_id":"b-1"}`))
		},
	}
	c := NewCorrelator(pub, queues, time.Second)

	raw, err := c.Call(context.Background(), "req", "req/response", []byte(`{}`))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(raw) != `{"booking_id":"b-1"}` {
		t.Fatalf("unexpected response: %s", raw)
	}
	if len(pub.published) != 1 || pub.published[0].Topic != "req" {
		t.Fatalf("unexpected publishes: %+v", pub.published)
	}
}

func TestCorrelatorTimesOut(t *testing.T) {
	queues := NewTopicQueues("req/response")
	c := NewCorrelator(&fakePublisher{}, queues, 20*time.Millisecond)

	_, err := c.Call(context.Background(), "req", "req/response", nil)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCorrelatorRejectsConcurrentCall(t *testing.T) {
	queues := NewTopicQueues("req/response")
	firstInFlight := make(chan struct{})
	release := make(chan struct{})
	pub := &fakePublisher{
		onPublish: func(string) {
			close(firstInFlight)
			<-release
		},
	}
	c := NewCorrelator(pub, queues, time.Second)

	go func() {
		_, _ = c.Call(context.Background(), "req", "req/response", nil)
	}()
	<-firstInFlight

	_, err := c.Call(context.Background(), "req", "req/response", nil)
	if !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
}

func TestCorrelatorDrainsStaleResponses(t *testing.T) {
	queues := NewTopicQueues("req/response")
	// A reply from an earlier, timed-out call is sitting on the queue.
	queues.Push("req/response", []byte(`stale`))

	pub := &fakePublisher{
		onPublish: func(string) {
			queues.Push("req/response", []byte(`fresh`))
		},
	}
	c := NewCorrelator(pub, queues, time.Second)

	raw, err := c.Call(context.Background(), "req", "req/response", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(raw) != "fresh" {
		t.Fatalf("expected fresh response, got %s", raw)
	}
}

func TestCorrelatorPropagatesContextCancel(t *testing.T) {
	queues := NewTopicQueues("req/response")
	c := NewCorrelator(&fakePublisher{}, queues, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "req", "req/response", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCorrelatorPropagatesPublishError(t *testing.T) {
	queues := NewTopicQueues("req/response")
	pubErr := errors.New("mqtt not connected")
	c := NewCorrelator(&fakePublisher{err: pubErr}, queues, time.Second)

	_, err := c.Call(context.Background(), "req", "req/response", nil)
	if !errors.Is(err, pubErr) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestTopicQueuesDropUnknownTopic(t *testing.T) {
	queues := NewTopicQueues("known")
	queues.Push("unknown", []byte(`x`))
	if queues.Drain("known") != 0 {
		t.Fatal("message leaked into wrong queue")
	}
	if queues.Channel("unknown") != nil {
		t.Fatal("expected nil channel for unknown topic")
	}
}

package domain

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

type PublisherPort interface {
	Publish(topic string, payload []byte) error
}

// CorrelatorPort turns an asynchronous publish/response exchange on the bus
// into a synchronous call. At most one round trip is in flight system-wide;
// a second caller gets ErrBusy instead of queueing.
type CorrelatorPort interface {
	Call(ctx context.Context, requestTopic, responseTopic string, payload []byte) ([]byte, error)
}

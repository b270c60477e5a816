package bus

import (
	"log/slog"
	"sync"
)

const defaultQueueDepth = 64

// TopicQueues owns one FIFO queue per subscribed topic, decoupling broker
// I/O from request handling. Queues are process-local coordination state
// only; they reset to empty on restart and never persist business fact.
type TopicQueues struct {
	mu     sync.RWMutex
	queues map[string]chan []byte
}

func NewTopicQueues(topics ...string) *TopicQueues {
	q := &TopicQueues{queues: make(map[string]chan []byte, len(topics))}
	for _, topic := range topics {
		q.queues[topic] = make(chan []byte, defaultQueueDepth)
	}
	return q
}

func (q *TopicQueues) Topics() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	topics := make([]string, 0, len(q.queues))
	for topic := range q.queues {
		topics = append(topics, topic)
	}
	return topics
}

// Push appends an inbound message to its topic's queue. Messages for
// unknown topics are dropped; a full queue also drops, since the correlator
// drains stale entries anyway before every call.
func (q *TopicQueues) Push(topic string, payload []byte) {
	q.mu.RLock()
	ch, ok := q.queues[topic]
	q.mu.RUnlock()
	if !ok {
		slog.Warn("no queue registered for topic, dropping message", "topic", topic)
		return
	}
	select {
	case ch <- payload:
	default:
		slog.Warn("topic queue full, dropping message", "topic", topic)
	}
}

// Channel returns the receive side of a topic's queue, or nil if the topic
// was never registered.
func (q *TopicQueues) Channel(topic string) <-chan []byte {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.queues[topic]
}

// Drain discards every message currently sitting on the topic's queue.
// Guards against a late reply from an earlier, timed-out call being
// misattributed to the next one.
func (q *TopicQueues) Drain(topic string) int {
	q.mu.RLock()
	ch, ok := q.queues[topic]
	q.mu.RUnlock()
	if !ok {
		return 0
	}
	dropped := 0
	for {
		select {
		case <-ch:
			dropped++
		default:
			if dropped > 0 {
				slog.Info("drained stale messages", "topic", topic, "count", dropped)
			}
			return dropped
		}
	}
}

package queue

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/unclebandit/fundraise-backend/internal/metric"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("queue closed")

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

type subscriber struct {
	topic   string
	ch      chan any
	handler func(payload any) error
}

// InMemoryQueue delivers each payload to every subscriber of its topic, in
// publish order, at most once. A subscriber whose buffer is full misses the
// payload; failed handlers are not retried.
type InMemoryQueue struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	buffer int
	closed bool
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewInMemoryQueue creates a new queue. buffer is the per-subscriber backlog.
func NewInMemoryQueue(log zerolog.Logger, buffer int) *InMemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &InMemoryQueue{
		subs:   make(map[string][]*subscriber),
		buffer: buffer,
		log:    log.With().Str("component", "queue").Logger(),
	}
}

// Publish hands payload to all subscribers of topic without blocking.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	for _, s := range q.subs[topic] {
		select {
		case s.ch <- payload:
		default:
			metric.EventsDropped.WithLabelValues(topic).Inc()
			q.log.Warn().Str("topic", topic).Msg("subscriber backlog full, payload dropped")
		}
	}
	return nil
}

// Subscribe adds a handler for a topic. Each handler runs on its own
// goroutine and sees payloads one at a time.
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	s := &subscriber{topic: topic, ch: make(chan any, q.buffer), handler: handler}
	q.subs[topic] = append(q.subs[topic], s)
	q.wg.Add(1)
	go q.consume(s)
	return nil
}

func (q *InMemoryQueue) consume(s *subscriber) {
	defer q.wg.Done()
	for payload := range s.ch {
		q.process(s, payload)
	}
}

func (q *InMemoryQueue) process(s *subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("topic", s.topic).Msg("subscriber panicked")
		}
	}()
	if err := s.handler(payload); err != nil {
		q.log.Warn().Err(err).Str("topic", s.topic).Msg("subscriber failed")
	}
}

// Close stops accepting payloads and waits for subscribers to drain their
// backlog.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, subs := range q.subs {
		for _, s := range subs {
			close(s.ch)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher relays ledger events to a RabbitMQ topic exchange. The
// routing key is the event name.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// DialAMQPPublisher connects and declares the exchange.
func DialAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to queue: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open queue channel: %w", err)
	}
	p, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher declares exchange on an open channel.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

// Publish sends payload as JSON. Envelopes are routed by event name, other
// payloads by topic.
func (p *AMQPPublisher) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	key := topic
	if env, ok := payload.(model.EventEnvelope); ok {
		key = env.Name
		msg.MessageId = fmt.Sprintf("%s/%d", env.TxID, env.Seq)
		msg.Timestamp = env.CommittedAt
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Publish(p.exchange, key, false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Forward subscribes to topic on q and republishes every payload to dst.
func Forward(q Queue, topic string, dst interface {
	Publish(topic string, payload any) error
}) error {
	return q.Subscribe(topic, func(payload any) error {
		return dst.Publish(topic, payload)
	})
}

// AMQPConsumer reads ledger events from a queue bound to the exchange.
type AMQPConsumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	log        zerolog.Logger
	deliveries <-chan amqp.Delivery
}

// DialAMQPConsumer declares queueName, binds it to exchange with bindingKey
// ("#" for every event) and starts consuming.
func DialAMQPConsumer(url, exchange, queueName, bindingKey string, log zerolog.Logger) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to queue: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open queue channel: %w", err)
	}
	fail := func(err error) (*AMQPConsumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare exchange %s: %w", exchange, err))
	}
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fail(fmt.Errorf("declare queue %s: %w", queueName, err))
	}
	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return fail(fmt.Errorf("bind queue %s: %w", queueName, err))
	}
	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("register consumer: %w", err))
	}
	return &AMQPConsumer{conn: conn, ch: ch, queue: q.Name, log: log, deliveries: msgs}, nil
}

// Consume passes every decoded envelope to handler until ctx is done or the
// broker closes the channel. Messages are acknowledged whatever the outcome,
// so each event is handled at most once.
func (c *AMQPConsumer) Consume(ctx context.Context, handler func(model.EventEnvelope) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-c.deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queue)
			}
			c.handle(d, handler)
		}
	}
}

func (c *AMQPConsumer) handle(d amqp.Delivery, handler func(model.EventEnvelope) error) {
	defer func() {
		if err := d.Ack(false); err != nil {
			c.log.Warn().Err(err).Msg("ack failed")
		}
	}()
	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		c.log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("invalid event")
		return
	}
	if err := handler(env); err != nil {
		c.log.Warn().Err(err).Str("event", env.Name).Uint64("seq", env.Seq).Msg("event handler failed")
	}
}

func (c *AMQPConsumer) Close() error {
	c.ch.Close()
	return c.conn.Close()
}

// DecodeEnvelope parses a JSON envelope produced by AMQPPublisher.
func DecodeEnvelope(body []byte) (model.EventEnvelope, error) {
	var raw model.RawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.EventEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return raw.Decode()
}

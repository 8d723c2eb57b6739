package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpPublisher is the part of *amqp.Channel the sink needs
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// amqpBuffer is how many events may wait for the broker before new ones
// are dropped
const amqpBuffer = 64

// AMQPEventSink mirrors order events onto a RabbitMQ fanout exchange so other
// services (kitchen displays, notifications) can follow orders. Events are
// published from a background goroutine; Publish only enqueues.
type AMQPEventSink struct {
	mu       sync.Mutex
	closed   bool
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	timeout  time.Duration
	queue    chan amqpMessage
	done     chan struct{}
}

type amqpMessage struct {
	event string
	body  []byte
	at    time.Time
}

// amqpEnvelope is the message body on the exchange
type amqpEnvelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DialAMQPEventSink connects to url and declares a durable fanout exchange
func DialAMQPEventSink(url, exchange string) (*AMQPEventSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Printf("AMQPEventSink: publishing order events to exchange %s", exchange)
	sink := newAMQPEventSink(ch, exchange)
	sink.conn = conn
	return sink, nil
}

func newAMQPEventSink(ch amqpPublisher, exchange string) *AMQPEventSink {
	s := &AMQPEventSink{
		ch:       ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		queue:    make(chan amqpMessage, amqpBuffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AMQPEventSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		s.publish(msg)
	}
}

// Publish queues the event for the broker. A full buffer drops the event;
// failures are logged, never returned.
func (s *AMQPEventSink) Publish(event string, payload interface{}) {
	now := time.Now()
	body, err := json.Marshal(amqpEnvelope{Event: event, Timestamp: now.UTC(), Data: payload})
	if err != nil {
		log.Printf("AMQPEventSink: failed to marshal %s: %v", event, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- amqpMessage{event: event, body: body, at: now}:
	default:
		log.Printf("AMQPEventSink: buffer full, dropping %s", event)
	}
}

func (s *AMQPEventSink) publish(msg amqpMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.ch.PublishWithContext(ctx,
		s.exchange, // exchange
		msg.event,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        msg.event,
			Body:        msg.body,
			Timestamp:   msg.at,
		})
	if err != nil {
		log.Printf("AMQPEventSink: failed to publish %s: %v", msg.event, err)
	}
}

// Close publishes what is still buffered, then closes the channel and
// connection
func (s *AMQPEventSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done

	if ch, ok := s.ch.(*amqp.Channel); ok && !ch.IsClosed() {
		if err := ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

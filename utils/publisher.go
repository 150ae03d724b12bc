package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const ExchangeName = "events"

// Publisher publishes JSON events to a durable topic exchange.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected reports whether both the connection and the channel are open.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && p.channel != nil && !p.conn.IsClosed() && !p.channel.IsClosed()
}

// Publish publishes an event to the exchange with the given routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// MessageEvent is the payload other services receive. The body stays private.
type MessageEvent struct {
	Label       string     `json:"label"`
	MessageID   uint       `json:"message_id"`
	Thread      string     `json:"thread,omitempty"`
	SenderID    uint       `json:"sender_id"`
	RecipientID uint       `json:"recipient_id"`
	Subject     string     `json:"subject"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// EventNotifier forwards notifications to the message broker.
type EventNotifier struct {
	publisher eventPublisher
}

func NewEventNotifier(publisher eventPublisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

func (en *EventNotifier) Name() string {
	return "amqp"
}

func (en *EventNotifier) Notify(ctx context.Context, n Notification) error {
	msg := n.Message
	event := MessageEvent{
		Label:     n.Label,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Subject:   msg.Subject,
		SentAt:    msg.SentAt,
	}
	if msg.Thread != nil {
		event.Thread = *msg.Thread
	}
	if msg.RecipientID != nil {
		event.RecipientID = *msg.RecipientID
	}
	return en.publisher.Publish(ctx, "messages."+n.Label, event)
}

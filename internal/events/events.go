// Package events announces history changes to other systems over AMQP.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Type string

const (
	PurchaseArchived   Type = "purchase.archived"
	PurchaseReconciled Type = "purchase.reconciled"
)

// Event is the JSON body of every published message.
type Event struct {
	Type        Type      `json:"type"`
	WorkspaceID int64     `json:"workspace_id"`
	PurchaseID  int64     `json:"purchase_id"`
	ItemCount   int       `json:"item_count"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange, routed by
// event type.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	logger   *slog.Logger
}

func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		"type", e.Type,
		"workspace_id", e.WorkspaceID,
		"purchase_id", e.PurchaseID,
		"exchange", p.exchange)
	return nil
}

func encode(e Event) (amqp091.Publishing, error) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

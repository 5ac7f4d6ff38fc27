// SPDX-License-Identifier: GPL-3.0-only

// Package events publishes conversion and plan lifecycle events to a
// RabbitMQ topic exchange for downstream consumers (audit trail,
// future transcoding workers). Publishing is best-effort: the service
// never fails a request because the broker is unavailable.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"towebp-server/commons"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "towebp.events"

const (
	ConversionCreated = "conversion.created"
	ConversionDeleted = "conversion.deleted"
	ConversionDenied  = "conversion.denied"
	PlanCreated       = "plan.created"
	PlanUpdated       = "plan.updated"
	PlanDeleted       = "plan.deleted"
	UserPlanChanged   = "user.plan_changed"
)

type Event struct {
	EID       string         `json:"eid"`
	Kind      string         `json:"kind"`
	UserID    uint           `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Publisher struct {
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

// NewPublisher connects to the broker named by AMQP_URL. A nil
// Publisher is a valid no-op: when the variable is unset, event
// publishing is simply disabled.
func NewPublisher() (*Publisher, error) {
	amqpURL := commons.GetEnv("AMQP_URL")
	if amqpURL == "" {
		commons.Logger.Info("AMQP_URL not set, event publishing disabled")
		return nil, nil
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("channel: %w", err)
	}

	exchange := commons.GetEnv("AMQP_EVENTS_EXCHANGE", DefaultExchange)
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	commons.Logger.Infof("Event publisher connected, exchange: %s", exchange)
	return &Publisher{exchange: exchange, conn: conn, channel: ch}, nil
}

// Publish emits an event with the kind as routing key. Safe on a nil
// receiver.
func (p *Publisher) Publish(ctx context.Context, kind string, userID uint, payload map[string]any) {
	if p == nil {
		return
	}

	event := Event{
		EID:       uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		commons.Logger.Errorf("Failed to marshal event %s: %v", kind, err)
		return
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EID,
		Timestamp:    event.CreatedAt,
		Body:         body,
	})
	if err != nil {
		commons.Logger.Errorf("Failed to publish event %s: %v", kind, err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/savrin/operato/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionPending MessageType = "execution.pending"
	MessageTypeWorkflowEvent    MessageType = "workflow.event"
	MessageTypeNotification     MessageType = "notification.send"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionPendingPayload — payload для сообщения о новом execution.
type ExecutionPendingPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	TemplateID  uuid.UUID `json:"template_id"`
}

// NotificationPayload — payload для исходящего уведомления.
type NotificationPayload struct {
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishExecutionPending публикует событие о новом execution,
// ожидающем продвижения. Потребитель: Engine.
func (p *Publisher) PublishExecutionPending(ctx context.Context, executionID, templateID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeExecutionPending,
		Payload:   ExecutionPendingPayload{ExecutionID: executionID, TemplateID: templateID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeExecutions, RoutingKeyPending, msg)
}

// PublishWorkflowEvent форвардит событие жизненного цикла внешним
// потребителям. Ключ маршрутизации — "event.<type>".
func (p *Publisher) PublishWorkflowEvent(ctx context.Context, event domain.WorkflowEvent) error {
	msg := &Message{
		ID:        event.ID.String(),
		Type:      MessageTypeWorkflowEvent,
		Payload:   event,
		Timestamp: event.Timestamp,
	}

	routingKey := RoutingKey(RoutingKeyEventPrefix + string(event.Type))
	return p.Publish(ctx, ExchangeEvents, routingKey, msg)
}

// PublishNotification публикует исходящее уведомление.
// Потребитель: notification service.
func (p *Publisher) PublishNotification(ctx context.Context, payload NotificationPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeNotification,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeNotifications, RoutingKeySend, msg)
}

package collab

import (
	"context"
	"log/slog"

	"github.com/savrin/operato/internal/mq"
)

// QueueNotifier отправляет уведомления через очередь RabbitMQ.
//
// Сообщение попадает в exchange operato.notifications; доставку
// адресатам (email, мессенджеры) выполняет отдельный notification
// service. Send возвращает true после успешной публикации.
type QueueNotifier struct {
	publisher *mq.Publisher
	logger    *slog.Logger
}

// NewQueueNotifier создаёт нотификатор поверх MQ publisher.
func NewQueueNotifier(publisher *mq.Publisher, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, logger: logger}
}

// Send публикует уведомление в очередь.
func (n *QueueNotifier) Send(ctx context.Context, recipients []string, payload map[string]any) (bool, error) {
	err := n.publisher.PublishNotification(ctx, mq.NotificationPayload{
		Recipients: recipients,
		Payload:    payload,
	})
	if err != nil {
		return false, err
	}

	n.logger.Debug("notification queued", "recipients", len(recipients))
	return true, nil
}

// LogNotifier — заглушка для конфигураций без RabbitMQ.
// Пишет уведомление в лог и считает его доставленным.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт лог-нотификатор.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send логирует уведомление.
func (n *LogNotifier) Send(_ context.Context, recipients []string, payload map[string]any) (bool, error) {
	n.logger.Info("notification (log only)",
		"recipients", recipients,
		"channel", payload["channel"],
	)
	return true, nil
}

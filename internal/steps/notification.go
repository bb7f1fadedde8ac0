package steps

import (
	"context"
	"fmt"

	"github.com/savrin/operato/internal/domain"
)

// Ключи конфигурации notification.
const (
	configRecipients = "recipients"
	configMessage    = "message"
	configChannel    = "channel"
)

// NotificationBehavior — шаг отправки уведомления.
//
// Получатели берутся из конфигурации ("recipients"); если список
// пуст, уведомление адресуется исполнителю шага.
//
// Конфигурация:
//
//	{
//	    "recipients": ["manager", "client@acme.io"],
//	    "channel": "email",
//	    "message": "Документы готовы к проверке"
//	}
type NotificationBehavior struct {
	notifier Notifier
}

// NewNotificationBehavior создаёт новый NotificationBehavior.
func NewNotificationBehavior(n Notifier) *NotificationBehavior {
	return &NotificationBehavior{notifier: n}
}

// Type возвращает тип шага.
func (b *NotificationBehavior) Type() domain.StepType { return domain.StepTypeNotification }

// Execute отправляет уведомление.
func (b *NotificationBehavior) Execute(ctx context.Context, req *Request) (*Response, error) {
	if b.notifier == nil {
		return nil, fmt.Errorf("%w: notification: notifier is not configured", ErrInvalidConfig)
	}

	recipients := GetConfigStrings(req.Step.Configuration, configRecipients)
	if len(recipients) == 0 && req.Step.Assignee != "" {
		recipients = []string{req.Step.Assignee}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: notification: no recipients", ErrInvalidConfig)
	}

	payload := map[string]any{
		"execution_id": req.Execution.ID.String(),
		"step_id":      req.Step.ID,
		"channel":      GetConfigString(req.Step.Configuration, configChannel),
		"message":      GetConfigString(req.Step.Configuration, configMessage),
		"inputs":       req.Inputs,
	}

	delivered, err := b.notifier.Send(ctx, recipients, payload)
	if err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}

	return &Response{Outputs: map[string]any{
		"delivered":  delivered,
		"recipients": recipients,
	}}, nil
}

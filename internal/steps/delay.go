package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/savrin/operato/internal/domain"
)

// Ключи конфигурации delay.
const (
	configDelay = "delay"
	configUnit  = "unit"
)

// DelayBehavior — шаг ожидания.
//
// Приостанавливает продвижение execution на указанное время.
// Поддерживает graceful shutdown через context cancellation:
// отмена контекста (cancel execution, остановка движка) прерывает
// ожидание немедленно.
//
// Конфигурация:
//
//	{
//	    "delay": 15,
//	    "unit": "minutes"   // seconds | minutes | hours | days
//	}
type DelayBehavior struct{}

// NewDelayBehavior создаёт новый DelayBehavior.
func NewDelayBehavior() *DelayBehavior {
	return &DelayBehavior{}
}

// Type возвращает тип шага.
func (b *DelayBehavior) Type() domain.StepType { return domain.StepTypeDelay }

// Execute выполняет ожидание.
func (b *DelayBehavior) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := b.parseDuration(req.Step.Configuration)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return &Response{Outputs: map[string]any{
			"delay_ms": duration.Milliseconds(),
		}}, nil
	}
}

// parseDuration извлекает длительность из конфигурации.
func (b *DelayBehavior) parseDuration(config map[string]any) (time.Duration, error) {
	delay := GetConfigInt(config, configDelay)
	if delay <= 0 {
		return 0, fmt.Errorf("%w: delay: positive 'delay' required", ErrInvalidConfig)
	}

	switch unit := GetConfigString(config, configUnit); unit {
	case "seconds":
		return time.Duration(delay) * time.Second, nil
	case "", "minutes":
		return time.Duration(delay) * time.Minute, nil
	case "hours":
		return time.Duration(delay) * time.Hour, nil
	case "days":
		return time.Duration(delay) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: delay: unknown unit %q", ErrInvalidConfig, unit)
	}
}

package controller

import (
	"time"

	"github.com/savrin/operato/internal/domain"
)

// FailureAction — решение политики по упавшему шагу.
type FailureAction string

const (
	// ActionRetry — повторить шаг после backoff-задержки.
	ActionRetry FailureAction = "retry"

	// ActionEscalate — переназначить шаг на следующий уровень
	// эскалации и повторить.
	ActionEscalate FailureAction = "escalate"

	// ActionFail — пометить весь execution как failed.
	ActionFail FailureAction = "fail"
)

// FailureDecision — результат применения политики retry/escalation.
type FailureDecision struct {
	Action FailureAction

	// Delay — задержка перед повтором (для retry).
	Delay time.Duration

	// Level и Assignee — цель эскалации (для escalate).
	Level    int
	Assignee string
}

// decideFailure применяет политику шаблона к упавшему шагу.
//
// Порядок: пока retry включён и лимит не исчерпан — retry; затем,
// пока есть уровни эскалации — escalate; иначе fail. Упавший шаг
// повторяется ровно MaxRetries раз, не больше.
func decideFailure(tpl *domain.Template, rec *domain.StepExecution) FailureDecision {
	retry := tpl.Settings.Retry
	if retry.Enabled && rec.RetryCount < retry.MaxRetries {
		return FailureDecision{
			Action: ActionRetry,
			Delay:  backoffDelay(rec.RetryCount+1, retry),
		}
	}

	if next := tpl.EscalationLevelAfter(rec.EscalationLevel); next != nil {
		return FailureDecision{
			Action:   ActionEscalate,
			Level:    next.Level,
			Assignee: next.Assignee,
		}
	}

	return FailureDecision{Action: ActionFail}
}

// backoffDelay вычисляет задержку перед повтором номер attempt.
func backoffDelay(attempt int, retry domain.RetrySettings) time.Duration {
	initialDelay := time.Duration(retry.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := time.Duration(retry.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var delay time.Duration
	switch retry.Backoff {
	case "exponential":
		// delay = initialDelay * 2^(attempt-1)
		delay = initialDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	default:
		// "fixed" или неизвестная стратегия
		delay = initialDelay
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

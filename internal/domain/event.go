package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла.
type EventType string

// Типы событий. События одного execution эмитятся строго в порядке
// переходов; между разными executions порядок не гарантируется.
const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"

	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
	EventStepEscalated EventType = "step_escalated"
)

// WorkflowEvent — неизменяемый факт о переходе в жизненном цикле.
//
// Поток событий append-only; потребители (дашборды, аудит) подписываются
// на него, движок их не дожидается.
type WorkflowEvent struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// ExecutionID — execution, к которому относится событие.
	ExecutionID uuid.UUID `json:"execution_id"`

	// TemplateID — шаблон execution.
	TemplateID uuid.UUID `json:"template_id"`

	// OrganizationID — организация из контекста execution.
	OrganizationID uuid.UUID `json:"organization_id"`

	// StepID — шаг (для step_* событий).
	StepID string `json:"step_id,omitempty"`

	// Payload — данные перехода: progress, outputs, error и т.д.
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp — время перехода.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent создаёт событие для execution.
func NewEvent(typ EventType, exec *Execution) WorkflowEvent {
	return WorkflowEvent{
		ID:             uuid.New(),
		Type:           typ,
		ExecutionID:    exec.ID,
		TemplateID:     exec.TemplateID,
		OrganizationID: exec.Context.OrganizationID,
		Timestamp:      time.Now(),
	}
}

// NewStepEvent создаёт событие для шага execution.
func NewStepEvent(typ EventType, exec *Execution, stepID string) WorkflowEvent {
	ev := NewEvent(typ, exec)
	ev.StepID = stepID
	return ev
}

// WithPayload добавляет данные к событию.
func (e WorkflowEvent) WithPayload(payload map[string]any) WorkflowEvent {
	e.Payload = payload
	return e
}

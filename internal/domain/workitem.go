package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem — долговременное рабочее задание, созданное task-шагом.
//
// Шаг типа "task" создаёт WorkItem, назначает его и сразу завершается
// со статусом "assigned": завершение самого задания человеком приходит
// асинхронно и на продвижение execution не влияет.
//
// Пара (ExecutionID, StepID) уникальна — повторная диспетчеризация
// шага после resume находит существующее задание вместо создания
// дубликата.
type WorkItem struct {
	// ID — уникальный идентификатор задания.
	ID uuid.UUID `json:"id"`

	// ExecutionID — execution, породивший задание.
	ExecutionID uuid.UUID `json:"execution_id"`

	// StepID — шаг, породивший задание.
	StepID string `json:"step_id"`

	// OrganizationID — организация из контекста execution.
	OrganizationID uuid.UUID `json:"organization_id"`

	// Title — заголовок задания.
	Title string `json:"title"`

	// Description — описание.
	Description string `json:"description,omitempty"`

	// AssignedTo — исполнитель.
	AssignedTo string `json:"assigned_to,omitempty"`

	// Status — статус задания.
	Status WorkItemStatus `json:"status"`

	// DueAt — срок исполнения, выведенный из рекомендательного
	// таймаута шага. Nil, если таймаут не объявлен.
	DueAt *time.Time `json:"due_at,omitempty"`

	// TimeoutAction — действие при просрочке из Step.Timeout
	// ("escalate", "skip", "fail"); потребляется вне движка.
	TimeoutAction string `json:"timeout_action,omitempty"`

	// CompletedAt — время выполнения задания человеком.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Reassign переназначает задание (эскалация).
func (w *WorkItem) Reassign(assignee string) {
	w.AssignedTo = assignee
	w.Status = WorkItemStatusReassigned
}

// MarkDone отмечает задание выполненным.
func (w *WorkItem) MarkDone() {
	now := time.Now()
	w.Status = WorkItemStatusDone
	w.CompletedAt = &now
}

package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// Ключи конфигурации task.
const (
	configTitle       = "title"
	configDescription = "description"
)

// TaskBehavior — шаг ручной работы.
//
// Создаёт рабочее задание (WorkItem) для исполнителя и сразу
// завершается: ожидание человека не блокирует движок. Повторный
// запуск того же шага (после resume) задание не дублирует —
// существующая запись по паре (execution, step) переиспользуется.
//
// Конфигурация:
//
//	{
//	    "title": "Проверить документы",
//	    "description": "..."
//	}
type TaskBehavior struct {
	store WorkItemStore
}

// NewTaskBehavior создаёт новый TaskBehavior.
func NewTaskBehavior(store WorkItemStore) *TaskBehavior {
	return &TaskBehavior{store: store}
}

// Type возвращает тип шага.
func (b *TaskBehavior) Type() domain.StepType { return domain.StepTypeTask }

// Execute создаёт или находит рабочее задание шага.
func (b *TaskBehavior) Execute(ctx context.Context, req *Request) (*Response, error) {
	if b.store == nil {
		return nil, fmt.Errorf("%w: task: work item store is not configured", ErrInvalidConfig)
	}

	existing, err := b.store.FindByStep(ctx, req.Execution.ID, req.Step.ID)
	if err != nil {
		return nil, fmt.Errorf("find work item: %w", err)
	}
	if existing != nil {
		return &Response{Outputs: map[string]any{
			"work_item_id": existing.ID.String(),
			"status":       string(existing.Status),
		}}, nil
	}

	item := b.buildWorkItem(req)
	if err := b.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create work item: %w", err)
	}

	return &Response{Outputs: map[string]any{
		"work_item_id": item.ID.String(),
		"status":       string(item.Status),
	}}, nil
}

// buildWorkItem собирает задание из определения шага и execution.
func (b *TaskBehavior) buildWorkItem(req *Request) *domain.WorkItem {
	title := GetConfigString(req.Step.Configuration, configTitle)
	if title == "" {
		title = req.Step.Name
	}

	item := &domain.WorkItem{
		ID:             uuid.New(),
		ExecutionID:    req.Execution.ID,
		StepID:         req.Step.ID,
		OrganizationID: req.Execution.Context.OrganizationID,
		Title:          title,
		Description:    GetConfigString(req.Step.Configuration, configDescription),
		AssignedTo:     req.Step.Assignee,
		Status:         domain.WorkItemStatusAssigned,
		CreatedAt:      time.Now(),
	}

	// Таймаут шага превращается в срок задания. Движок срок не
	// форсирует: реакция (reassign, escalate) остаётся за потребителем.
	if t := req.Step.Timeout; t != nil {
		due := item.CreatedAt.Add(t.AsDuration())
		item.DueAt = &due
		item.TimeoutAction = t.Action
	}

	return item
}

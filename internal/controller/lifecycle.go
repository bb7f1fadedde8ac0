package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
	"github.com/savrin/operato/internal/repo"
	"github.com/savrin/operato/internal/telemetry"
)

// StartRequest — параметры запуска execution.
type StartRequest struct {
	// TemplateID — шаблон для запуска.
	TemplateID uuid.UUID

	// TemplateVersion — версия шаблона. 0 — последняя.
	TemplateVersion int

	// Context — бизнес-контекст execution.
	Context domain.ExecutionContext

	// Variables — значения переменных, перекрывающие дефолты шаблона.
	Variables map[string]any

	// AssignedTo — ответственный за execution.
	AssignedTo string
}

// StartExecution создаёт execution и начинает его продвижение.
//
// Переменные засеваются из дефолтов шаблона и перекрываются
// значениями из запроса; отсутствие обязательной переменной — ошибка.
func (c *Controller) StartExecution(ctx context.Context, req StartRequest) (*domain.Execution, error) {
	tpl, err := c.findTemplate(ctx, req.TemplateID, req.TemplateVersion)
	if err != nil {
		return nil, err
	}

	vars, err := engine.SeedVariables(tpl, req.Variables)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exec := &domain.Execution{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		Status:          domain.ExecutionStatusPending,
		Variables:       vars,
		Context:         req.Context,
		AssignedTo:      req.AssignedTo,
		CreatedAt:       now,
	}

	if err := c.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	c.logger.Info("execution created",
		"execution_id", exec.ID,
		"template_id", tpl.ID,
		"template_version", tpl.Version,
	)

	if err := c.activate(exec, tpl, nil); err != nil {
		return nil, err
	}
	return exec, nil
}

// Activate подхватывает execution (из очереди или polling) и начинает
// его продвижение. Принимает pending и running: running означает
// execution, возобновлённый через API другого процесса, — он
// продолжается с currentStepID.
func (c *Controller) Activate(ctx context.Context, executionID uuid.UUID) error {
	if c.isActive(executionID) {
		return ErrExecutionAlreadyActive
	}

	exec, err := c.findExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != domain.ExecutionStatusPending && exec.Status != domain.ExecutionStatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrExecutionNotPending, executionID, exec.Status)
	}

	tpl, err := c.findTemplate(ctx, exec.TemplateID, exec.TemplateVersion)
	if err != nil {
		return err
	}

	records, err := c.stepRecs.ListByExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load step records: %w", err)
	}

	return c.activate(exec, tpl, records)
}

// activate регистрирует execution как активный и запускает
// горутину продвижения с указанного шага (пустой — со start-шага).
func (c *Controller) activate(exec *domain.Execution, tpl *domain.Template, records []domain.StepExecution) error {
	st := NewExecState(exec, tpl)
	st.Restore(records)

	if err := c.addActive(st); err != nil {
		return err
	}

	parent := c.runCtx
	if parent == nil {
		parent = context.Background()
	}
	runCtx, cancel := context.WithCancel(parent)
	st.setCancel(cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer c.removeActive(st.ExecutionID())
		c.runExecution(runCtx, st)
	}()

	return nil
}

// Pause приостанавливает execution.
//
// Допустим только из running. В полёте шаг не прерывается: pause лишь
// запрещает продвигаться дальше после его завершения.
func (c *Controller) Pause(ctx context.Context, executionID uuid.UUID, reason string) error {
	if st := c.getActive(executionID); st != nil {
		st.mu.Lock()
		if st.Exec.Status != domain.ExecutionStatusRunning {
			status := st.Exec.Status
			st.mu.Unlock()
			return fmt.Errorf("%w: pause from %s", ErrInvalidStateTransition, status)
		}
		st.Exec.MarkPaused(reason)
		exec := *st.Exec
		st.mu.Unlock()

		if err := c.executions.Update(ctx, &exec); err != nil {
			return fmt.Errorf("update execution: %w", err)
		}
		c.publish(ctx, domain.NewEvent(domain.EventWorkflowPaused, &exec).
			WithPayload(map[string]any{"reason": reason}))
		c.logger.Info("execution paused", "execution_id", executionID, "reason", reason)
		return nil
	}

	exec, err := c.findExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != domain.ExecutionStatusRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidStateTransition, exec.Status)
	}

	exec.MarkPaused(reason)
	if err := c.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	c.publish(ctx, domain.NewEvent(domain.EventWorkflowPaused, exec).
		WithPayload(map[string]any{"reason": reason}))
	c.logger.Info("execution paused", "execution_id", executionID, "reason", reason)
	return nil
}

// Resume возобновляет приостановленный execution.
//
// Повторно диспетчеризует currentStepID с нуля; поведения шагов
// обязаны быть идемпотентными (task-шаг переиспользует уже
// созданное задание).
func (c *Controller) Resume(ctx context.Context, executionID uuid.UUID) error {
	if c.isActive(executionID) {
		return ErrExecutionAlreadyActive
	}

	exec, err := c.findExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != domain.ExecutionStatusPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidStateTransition, exec.Status)
	}

	tpl, err := c.findTemplate(ctx, exec.TemplateID, exec.TemplateVersion)
	if err != nil {
		return err
	}
	records, err := c.stepRecs.ListByExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load step records: %w", err)
	}

	exec.MarkResumed()
	if err := c.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	c.publish(ctx, domain.NewEvent(domain.EventWorkflowResumed, exec))
	c.logger.Info("execution resumed", "execution_id", executionID, "step_id", exec.CurrentStepID)

	return c.activate(exec, tpl, records)
}

// Cancel отменяет execution.
//
// Допустим из любого нетерминального статуса. Отмена кооперативна:
// статус переключается сразу, шаг в полёте получает отмену контекста,
// дальше execution не продвигается.
func (c *Controller) Cancel(ctx context.Context, executionID uuid.UUID, reason string) error {
	if st := c.getActive(executionID); st != nil {
		st.mu.Lock()
		if st.Exec.Status.IsTerminal() {
			status := st.Exec.Status
			st.mu.Unlock()
			return fmt.Errorf("%w: cancel from %s", ErrInvalidStateTransition, status)
		}
		st.Exec.MarkCancelled(reason)
		exec := *st.Exec
		st.mu.Unlock()

		st.Cancel()

		if err := c.executions.Update(ctx, &exec); err != nil {
			return fmt.Errorf("update execution: %w", err)
		}
		c.publish(ctx, domain.NewEvent(domain.EventWorkflowCancelled, &exec).
			WithPayload(map[string]any{"reason": reason}))
		telemetry.ExecutionsCancelled.Inc()
		c.logger.Info("execution cancelled", "execution_id", executionID, "reason", reason)
		return nil
	}

	exec, err := c.findExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidStateTransition, exec.Status)
	}

	exec.MarkCancelled(reason)
	if err := c.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	c.publish(ctx, domain.NewEvent(domain.EventWorkflowCancelled, exec).
		WithPayload(map[string]any{"reason": reason}))
	telemetry.ExecutionsCancelled.Inc()
	c.logger.Info("execution cancelled", "execution_id", executionID, "reason", reason)
	return nil
}

// findTemplate загружает версию шаблона (0 — последнюю).
func (c *Controller) findTemplate(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	var (
		tpl *domain.Template
		err error
	)
	if version > 0 {
		tpl, err = c.templates.FindVersion(ctx, id, version)
	} else {
		tpl, err = c.templates.FindLatest(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s v%d", ErrTemplateNotFound, id, version)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// findExecution загружает execution.
func (c *Controller) findExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	exec, err := c.executions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// publish рассылает событие подписчикам шины и, если настроен MQ,
// форвардит его внешним потребителям. Движок доставку не дожидается.
func (c *Controller) publish(ctx context.Context, event domain.WorkflowEvent) {
	c.bus.Publish(event)

	if c.publisher != nil {
		if err := c.publisher.PublishWorkflowEvent(ctx, event); err != nil {
			c.logger.Warn("failed to forward workflow event",
				"event_type", string(event.Type),
				"execution_id", event.ExecutionID,
				"error", err,
			)
		}
	}
}

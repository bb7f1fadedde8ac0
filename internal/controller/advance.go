package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
	"github.com/savrin/operato/internal/steps"
	"github.com/savrin/operato/internal/telemetry"
)

// runExecution — горутина продвижения одного execution.
//
// Обрабатывает переходы последовательно: очередь шагов к
// диспетчеризации пополняется целями открытых connections
// завершившихся шагов. Перед каждым переходом проверяется статус
// execution, поэтому pause и cancel останавливают продвижение
// на ближайшей границе шага.
func (c *Controller) runExecution(ctx context.Context, st *ExecState) {
	logger := c.logger.With("execution_id", st.ExecutionID())

	queue, ok := c.begin(ctx, st, logger)
	if !ok {
		return
	}

	for len(queue) > 0 {
		// Pause и cancel могут прийти из другого процесса (через API):
		// на границе шага синхронизируем статус из БД
		c.syncExternalStatus(ctx, st)

		switch st.Status() {
		case domain.ExecutionStatusRunning:
		case domain.ExecutionStatusPaused:
			logger.Info("advancement paused", "queued_steps", len(queue))
			return
		default:
			return
		}

		stepID := queue[0]
		queue = queue[1:]

		next, terminal := c.dispatchStep(ctx, st, stepID, logger)
		if terminal {
			return
		}
		queue = append(queue, next...)
	}

	// Очередь пуста без терминального перехода: все оставшиеся шаги
	// ждут незавершаемых зависимостей. Execution остаётся running,
	// диагностируется по этому логу.
	logger.Warn("no dispatchable steps remain, execution stalled")
}

// begin подготавливает очередь продвижения.
//
// Для pending execution — переход в running, событие workflow_started
// и очередь из start-шага. Для возобновлённого — очередь из
// currentStepID, который перезапускается с нуля.
func (c *Controller) begin(ctx context.Context, st *ExecState, logger *slog.Logger) ([]string, bool) {
	st.mu.Lock()
	status := st.Exec.Status
	st.mu.Unlock()

	switch status {
	case domain.ExecutionStatusPending:
		start := st.Template.StartStep()
		if start == nil {
			c.failExecution(ctx, st, logger, "template has no start step")
			return nil, false
		}

		st.mu.Lock()
		st.Exec.MarkRunning()
		st.Exec.CurrentStepID = start.ID
		snap := *st.Exec
		st.mu.Unlock()

		if err := c.executions.Update(ctx, &snap); err != nil {
			logger.Error("failed to persist running status", "error", err)
			return nil, false
		}

		c.publish(ctx, domain.NewEvent(domain.EventWorkflowStarted, &snap).
			WithPayload(map[string]any{
				"template_id":      snap.TemplateID.String(),
				"template_version": snap.TemplateVersion,
			}))
		telemetry.ExecutionsStarted.Inc()
		logger.Info("execution started",
			"template_id", snap.TemplateID,
			"template_version", snap.TemplateVersion,
		)
		return []string{start.ID}, true

	case domain.ExecutionStatusRunning:
		// Возобновление: currentStepID перезапускается с нуля
		st.mu.Lock()
		stepID := st.Exec.CurrentStepID
		snap := *st.Exec
		st.mu.Unlock()

		if stepID == "" {
			if start := st.Template.StartStep(); start != nil {
				stepID = start.ID
			}
		}
		if stepID == "" {
			c.failExecution(ctx, st, logger, "template has no start step")
			return nil, false
		}

		// Шаг, успевший завершиться до паузы, не перезапускается:
		// продвижение продолжается по его исходящим связям.
		if rec := st.Record(stepID); rec != nil && rec.Status == domain.StepStatusCompleted {
			step := st.Template.StepByID(stepID)
			if step == nil {
				c.failExecution(ctx, st, logger, fmt.Sprintf("step %q not found in template", stepID))
				return nil, false
			}
			targets := c.eligibleTargets(st, step, &snap, rec.Outputs)
			if len(targets) == 0 {
				c.completeExecution(ctx, st, logger)
				return nil, false
			}
			return targets, true
		}
		return []string{stepID}, true

	default:
		return nil, false
	}
}

// syncExternalStatus подтягивает pause/cancel, выполненные в обход
// этого процесса. Прочие расхождения игнорируются: источником истины
// для активного execution остаётся память контроллера.
func (c *Controller) syncExternalStatus(ctx context.Context, st *ExecState) {
	fresh, err := c.executions.FindByID(ctx, st.ExecutionID())
	if err != nil {
		return
	}
	if fresh.Status != domain.ExecutionStatusPaused && fresh.Status != domain.ExecutionStatusCancelled {
		return
	}

	st.mu.Lock()
	if st.Exec.Status == domain.ExecutionStatusRunning {
		st.Exec.Status = fresh.Status
		st.Exec.PauseReason = fresh.PauseReason
		st.Exec.CancelReason = fresh.CancelReason
		st.Exec.PausedAt = fresh.PausedAt
		st.Exec.FinishedAt = fresh.FinishedAt
	}
	st.mu.Unlock()

	if fresh.Status == domain.ExecutionStatusCancelled {
		st.Cancel()
	}
}

// dispatchStep выполняет один шаг и возвращает цели его открытых
// исходящих connections. terminal=true означает, что execution
// достиг терминального статуса или продвижение прервано.
func (c *Controller) dispatchStep(ctx context.Context, st *ExecState, stepID string, logger *slog.Logger) (next []string, terminal bool) {
	step := st.Template.StepByID(stepID)
	if step == nil {
		c.failExecution(ctx, st, logger, fmt.Sprintf("step %q not found in template", stepID))
		return nil, true
	}

	// Fan-in: шаг с незавершёнными зависимостями остаётся pending;
	// его снова поставит в очередь завершение последней ветки.
	if !engine.DependenciesSatisfied(step, st.Lookup()) {
		logger.Debug("dependencies not satisfied", "step_id", stepID)
		return nil, false
	}

	// Дубль в очереди: обе ветки fan-in ставят merge-цель, и первый
	// dispatch уже выполнил шаг и поставил в очередь его цели.
	// Завершённый шаг не выполняется повторно и не порождает
	// повторных событий.
	rec := st.Record(stepID)
	if rec != nil && rec.Status == domain.StepStatusCompleted {
		logger.Debug("step already completed, skipping duplicate dispatch", "step_id", stepID)
		return nil, false
	}
	isNew := rec == nil
	if isNew {
		rec = &domain.StepExecution{
			ID:          uuid.New(),
			ExecutionID: st.ExecutionID(),
			StepID:      step.ID,
			Name:        step.Name,
			Type:        step.Type,
			AssignedTo:  step.Assignee,
			Status:      domain.StepStatusReady,
			CreatedAt:   time.Now(),
		}
	}

	st.mu.Lock()
	if st.Exec.Status != domain.ExecutionStatusRunning {
		st.mu.Unlock()
		return nil, false
	}
	st.Exec.CurrentStepID = stepID
	execSnap := *st.Exec
	st.mu.Unlock()

	if err := c.executions.Update(ctx, &execSnap); err != nil {
		logger.Error("failed to persist current step", "step_id", stepID, "error", err)
		return nil, true
	}

	inputs := engine.ResolveInputs(step, &execSnap)
	rec.Inputs = inputs
	rec.MarkRunning()
	if err := c.persistRecord(ctx, rec, isNew); err != nil {
		logger.Error("failed to persist step record", "step_id", stepID, "error", err)
		return nil, true
	}
	st.SetRecord(rec)

	// start и end — структурные маркеры; их переходы сворачиваются
	// в workflow_started/workflow_completed.
	structural := step.Type == domain.StepTypeStart || step.Type == domain.StepTypeEnd
	if !structural {
		c.publish(ctx, domain.NewStepEvent(domain.EventStepStarted, &execSnap, stepID))
	}
	telemetry.StepsDispatched.WithLabelValues(string(step.Type)).Inc()
	logger.Info("step dispatched", "step_id", stepID, "type", step.Type)

	resp, aborted := c.executeWithPolicy(ctx, st, step, rec, &execSnap, inputs, logger)
	if aborted {
		return nil, true
	}

	var outputs map[string]any
	if resp != nil {
		outputs = resp.Outputs
	}
	rec.MarkCompleted(outputs)
	if err := c.stepRecs.Update(ctx, rec); err != nil {
		logger.Error("failed to persist step completion", "step_id", stepID, "error", err)
		return nil, true
	}
	st.SetRecord(rec)

	completed := st.CompletedSteps()
	total := len(st.Template.Steps)

	st.mu.Lock()
	if st.Exec.Status.IsTerminal() {
		st.mu.Unlock()
		return nil, true
	}
	st.Exec.MergeOutputs(outputs)
	st.Exec.Progress = engine.Progress(completed, total)
	execSnap = *st.Exec
	st.mu.Unlock()

	if err := c.executions.Update(ctx, &execSnap); err != nil {
		logger.Error("failed to persist progress", "step_id", stepID, "error", err)
		return nil, true
	}

	if !structural {
		c.publish(ctx, domain.NewStepEvent(domain.EventStepCompleted, &execSnap, stepID).
			WithPayload(map[string]any{
				"progress": execSnap.Progress,
				"outputs":  outputs,
			}))
	}
	logger.Info("step completed", "step_id", stepID, "progress", execSnap.Progress)

	targets := c.eligibleTargets(st, step, &execSnap, outputs)
	if len(targets) == 0 {
		// Нет открытых исходящих связей — процесс дошёл до конца
		c.completeExecution(ctx, st, logger)
		return nil, true
	}
	return targets, false
}

// executeWithPolicy выполняет behavior шага, применяя политику
// retry/escalation к падениям. aborted=true — execution достиг
// терминального статуса или продвижение прервано.
func (c *Controller) executeWithPolicy(ctx context.Context, st *ExecState, step *domain.Step, rec *domain.StepExecution, exec *domain.Execution, inputs map[string]any, logger *slog.Logger) (resp *steps.Response, aborted bool) {
	behavior, regErr := c.registry.Get(step.Type)

	started := time.Now()
	for {
		var execErr error
		if regErr != nil {
			// Незарегистрированный тип — обычное падение шага,
			// проходит через политику
			execErr = regErr
		} else {
			resp, execErr = behavior.Execute(ctx, &steps.Request{
				Step:      step,
				Execution: exec,
				Inputs:    inputs,
			})
		}

		if execErr == nil {
			telemetry.StepDuration.WithLabelValues(string(step.Type)).Observe(time.Since(started).Seconds())
			return resp, false
		}

		// Отмена execution в полёте — не падение шага
		if st.Status() == domain.ExecutionStatusCancelled || ctx.Err() != nil {
			rec.MarkCancelled()
			if err := c.stepRecs.Update(ctx, rec); err != nil {
				logger.Error("failed to persist step cancellation", "step_id", step.ID, "error", err)
			}
			st.SetRecord(rec)
			return nil, true
		}

		rec.MarkFailed(execErr.Error())
		if err := c.stepRecs.Update(ctx, rec); err != nil {
			logger.Error("failed to persist step failure", "step_id", step.ID, "error", err)
			return nil, true
		}
		st.SetRecord(rec)

		c.publish(ctx, domain.NewStepEvent(domain.EventStepFailed, exec, step.ID).
			WithPayload(map[string]any{
				"error":       execErr.Error(),
				"retry_count": rec.RetryCount,
			}))
		telemetry.StepFailures.WithLabelValues(string(step.Type)).Inc()
		logger.Warn("step failed",
			"step_id", step.ID,
			"retry_count", rec.RetryCount,
			"error", execErr,
		)

		decision := decideFailure(st.Template, rec)
		switch decision.Action {
		case ActionRetry:
			logger.Info("retrying step",
				"step_id", step.ID,
				"attempt", rec.RetryCount+1,
				"delay", decision.Delay,
			)
			select {
			case <-time.After(decision.Delay):
			case <-ctx.Done():
				return nil, true
			}
			rec.ResetForRetry()
			rec.MarkRunning()
			if err := c.stepRecs.Update(ctx, rec); err != nil {
				logger.Error("failed to persist step retry", "step_id", step.ID, "error", err)
				return nil, true
			}
			st.SetRecord(rec)
			telemetry.StepRetries.Inc()

		case ActionEscalate:
			rec.Escalate(decision.Level, decision.Assignee)
			rec.MarkRunning()
			if err := c.stepRecs.Update(ctx, rec); err != nil {
				logger.Error("failed to persist step escalation", "step_id", step.ID, "error", err)
				return nil, true
			}
			st.SetRecord(rec)

			c.publish(ctx, domain.NewStepEvent(domain.EventStepEscalated, exec, step.ID).
				WithPayload(map[string]any{
					"level":    decision.Level,
					"assignee": decision.Assignee,
				}))
			telemetry.StepEscalations.Inc()
			logger.Warn("step escalated",
				"step_id", step.ID,
				"level", decision.Level,
				"assignee", decision.Assignee,
			)

		case ActionFail:
			c.failExecution(ctx, st, logger, execErr.Error())
			return nil, true
		}
	}
}

// eligibleTargets возвращает цели открытых исходящих connections шага.
//
// Связь открыта, если её guard истинен; связь без guard из
// decision-шага открыта при совпадении метки с выбранным путём
// (пустая метка означает "default"); прочие связи без guard
// открыты всегда.
func (c *Controller) eligibleTargets(st *ExecState, step *domain.Step, exec *domain.Execution, outputs map[string]any) []string {
	selected := ""
	if step.Type == domain.StepTypeDecision {
		if v, ok := outputs[steps.OutputSelectedPath].(string); ok {
			selected = v
		}
	}

	var targets []string
	for _, conn := range st.Template.ConnectionsFrom(step.ID) {
		switch {
		case conn.Condition != nil:
			if !engine.Evaluate(*conn.Condition, exec) {
				continue
			}
		case step.Type == domain.StepTypeDecision:
			label := conn.Label
			if label == "" {
				label = steps.DefaultPath
			}
			if label != selected {
				continue
			}
		}
		targets = append(targets, conn.TargetStepID)
	}
	return targets
}

// completeExecution финализирует успешно прошедший execution.
func (c *Controller) completeExecution(ctx context.Context, st *ExecState, logger *slog.Logger) {
	st.mu.Lock()
	if st.Exec.Status != domain.ExecutionStatusRunning {
		st.mu.Unlock()
		return
	}
	st.Exec.MarkCompleted()
	snap := *st.Exec
	st.mu.Unlock()

	if err := c.executions.Update(ctx, &snap); err != nil {
		logger.Error("failed to persist completion", "error", err)
		return
	}

	c.publish(ctx, domain.NewEvent(domain.EventWorkflowCompleted, &snap).
		WithPayload(map[string]any{"progress": snap.Progress}))
	telemetry.ExecutionsCompleted.Inc()
	logger.Info("execution completed", "duration", snap.Duration())
}

// failExecution финализирует execution с ошибкой.
func (c *Controller) failExecution(ctx context.Context, st *ExecState, logger *slog.Logger, errMsg string) {
	st.mu.Lock()
	if st.Exec.Status.IsTerminal() {
		st.mu.Unlock()
		return
	}
	st.Exec.MarkFailed(errMsg)
	snap := *st.Exec
	st.mu.Unlock()

	if err := c.executions.Update(ctx, &snap); err != nil {
		logger.Error("failed to persist failure", "error", err)
		return
	}

	c.publish(ctx, domain.NewEvent(domain.EventWorkflowFailed, &snap).
		WithPayload(map[string]any{"error": errMsg}))
	telemetry.ExecutionsFailed.Inc()
	logger.Error("execution failed", "error", errMsg)
}

// persistRecord сохраняет запись шага (создание или обновление).
func (c *Controller) persistRecord(ctx context.Context, rec *domain.StepExecution, isNew bool) error {
	if isNew {
		return c.stepRecs.Create(ctx, rec)
	}
	return c.stepRecs.Update(ctx, rec)
}

package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	          RUNNING ⇄ PAUSED
//	          (или) → CANCELLED (из любого нетерминального статуса)
type ExecutionStatus string

const (
	// ExecutionStatusPending — execution создан, но первый шаг ещё не запущен.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning — execution в процессе выполнения.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusPaused — execution приостановлен; продвижение заблокировано
	// до вызова Resume. Шаг, выполняющийся в момент паузы, не прерывается.
	ExecutionStatusPaused ExecutionStatus = "paused"

	// ExecutionStatusCompleted — все достижимые шаги завершены успешно.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — execution завершился с ошибкой
	// (политика retry/escalation исчерпана).
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusCancelled — execution отменён пользователем.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (execution завершён).
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения одного шага (StepExecution).
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → COMPLETED
//	                          ↘ FAILED (retry → снова RUNNING)
//	PENDING → SKIPPED (ветка не выбрана)
//	PENDING/READY/RUNNING → CANCELLED (execution отменён)
type StepStatus string

const (
	// StepStatusPending — запись создана, зависимости ещё не удовлетворены.
	StepStatusPending StepStatus = "pending"

	// StepStatusReady — зависимости удовлетворены, шаг готов к запуску.
	StepStatusReady StepStatus = "ready"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped — шаг пропущен (условие ветвления не выполнено).
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusCancelled — шаг отменён вместе с execution.
	StepStatusCancelled StepStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkItemStatus — статус рабочего задания, созданного task-шагом.
//
// Завершение задания человеком приходит асинхронно и не связано
// с завершением самого шага.
type WorkItemStatus string

const (
	// WorkItemStatusAssigned — задание создано и назначено исполнителю.
	WorkItemStatusAssigned WorkItemStatus = "assigned"

	// WorkItemStatusInProgress — исполнитель взял задание в работу.
	WorkItemStatusInProgress WorkItemStatus = "in_progress"

	// WorkItemStatusDone — задание выполнено.
	WorkItemStatusDone WorkItemStatus = "done"

	// WorkItemStatusReassigned — задание переназначено (escalation).
	WorkItemStatusReassigned WorkItemStatus = "reassigned"

	// WorkItemStatusCancelled — задание отозвано (например, при отмене
	// родительского execution).
	WorkItemStatusCancelled WorkItemStatus = "cancelled"
)

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — экземпляр выполнения шаблона.
//
// Execution создаётся когда:
//   - Пользователь запускает шаблон вручную (через API/CLI)
//   - Scheduler создаёт execution по scheduled-триггеру
//   - Внешняя система инициирует запуск по event-триггеру
//
// Execution ссылается на конкретную версию шаблона, но не владеет ею;
// записями StepExecution он владеет эксклюзивно.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// TemplateID — ссылка на шаблон.
	TemplateID uuid.UUID `json:"template_id"`

	// TemplateVersion — версия шаблона, которая выполняется.
	TemplateVersion int `json:"template_version"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// CurrentStepID — шаг, обрабатываемый в данный момент.
	// При resume именно он перезапускается с нуля.
	CurrentStepID string `json:"current_step_id,omitempty"`

	// Progress — прогресс 0–100: доля завершённых шагов от общего
	// количества. Ровно 100 только при статусе COMPLETED.
	Progress int `json:"progress"`

	// Variables — переменные процесса. Засеваются из defaults шаблона,
	// перекрываются значениями вызывающего, затем мутируются
	// outputs шагов.
	Variables map[string]any `json:"variables,omitempty"`

	// Context — бизнес-контекст, к которому привязан execution.
	Context ExecutionContext `json:"context"`

	// AssignedTo — текущий ответственный за execution.
	AssignedTo string `json:"assigned_to,omitempty"`

	// PauseReason — причина последней паузы.
	PauseReason string `json:"pause_reason,omitempty"`

	// CancelReason — причина отмены.
	CancelReason string `json:"cancel_reason,omitempty"`

	// Error — текст ошибки, если execution завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// PausedAt — время последней паузы.
	PausedAt *time.Time `json:"paused_at,omitempty"`

	// FinishedAt — время достижения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionContext — бизнес-контекст execution.
//
// Передаётся явно в каждый вызов персистентности и коллабораторов:
// движок обслуживает много организаций одновременно, и неявное
// "текущее" состояние привело бы к межтенантным утечкам.
type ExecutionContext struct {
	// OrganizationID — организация, в рамках которой идёт процесс.
	OrganizationID uuid.UUID `json:"organization_id"`

	// ActorID — пользователь, инициировавший запуск.
	ActorID string `json:"actor_id,omitempty"`

	// ClientID — клиент, к которому относится процесс.
	ClientID string `json:"client_id,omitempty"`

	// EngagementID — договор/проект.
	EngagementID string `json:"engagement_id,omitempty"`

	// Custom — произвольные дополнительные поля контекста.
	Custom map[string]any `json:"custom,omitempty"`
}

// Field возвращает поле контекста по имени.
// Известные имена — organization_id, actor_id, client_id, engagement_id;
// остальные ищутся в Custom.
func (c *ExecutionContext) Field(name string) (any, bool) {
	switch name {
	case "organization_id":
		return c.OrganizationID.String(), true
	case "actor_id":
		return c.ActorID, c.ActorID != ""
	case "client_id":
		return c.ClientID, c.ClientID != ""
	case "engagement_id":
		return c.EngagementID, c.EngagementID != ""
	}
	v, ok := c.Custom[name]
	return v, ok
}

// AsMap возвращает контекст в виде map для слияния во входы шага.
func (c *ExecutionContext) AsMap() map[string]any {
	m := map[string]any{
		"organization_id": c.OrganizationID.String(),
	}
	if c.ActorID != "" {
		m["actor_id"] = c.ActorID
	}
	if c.ClientID != "" {
		m["client_id"] = c.ClientID
	}
	if c.EngagementID != "" {
		m["engagement_id"] = c.EngagementID
	}
	for k, v := range c.Custom {
		m[k] = v
	}
	return m
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если execution в терминальном статусе.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// Attribute возвращает атрибут execution по имени.
// Используется condition evaluator'ом для полей без префикса.
func (e *Execution) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID.String(), true
	case "status":
		return string(e.Status), true
	case "current_step_id", "currentStepId":
		return e.CurrentStepID, true
	case "progress":
		return e.Progress, true
	case "assigned_to", "assignedTo":
		return e.AssignedTo, e.AssignedTo != ""
	default:
		return nil, false
	}
}

// MarkRunning переводит execution в RUNNING.
func (e *Execution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
}

// MarkPaused переводит execution в PAUSED с причиной.
func (e *Execution) MarkPaused(reason string) {
	now := time.Now()
	e.Status = ExecutionStatusPaused
	e.PauseReason = reason
	e.PausedAt = &now
}

// MarkResumed возвращает execution из PAUSED в RUNNING.
func (e *Execution) MarkResumed() {
	e.Status = ExecutionStatusRunning
	e.PauseReason = ""
	e.PausedAt = nil
}

// MarkCompleted переводит execution в COMPLETED и фиксирует прогресс 100.
func (e *Execution) MarkCompleted() {
	now := time.Now()
	e.Status = ExecutionStatusCompleted
	e.Progress = 100
	e.FinishedAt = &now
}

// MarkFailed переводит execution в FAILED с ошибкой.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.Error = err
	e.FinishedAt = &now
}

// MarkCancelled переводит execution в CANCELLED.
func (e *Execution) MarkCancelled(reason string) {
	now := time.Now()
	e.Status = ExecutionStatusCancelled
	e.CancelReason = reason
	e.FinishedAt = &now
}

// SetVariable записывает переменную процесса.
func (e *Execution) SetVariable(name string, value any) {
	if e.Variables == nil {
		e.Variables = make(map[string]any)
	}
	e.Variables[name] = value
}

// MergeOutputs вливает outputs завершённого шага в переменные.
func (e *Execution) MergeOutputs(outputs map[string]any) {
	for k, v := range outputs {
		e.SetVariable(k, v)
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Template — неизменяемый шаблон рабочего процесса.
//
// Template — это "чертёж" процесса: набор шагов, связи между ними,
// объявленные переменные и настройки политик. Изменение шаблона
// всегда создаёт новую версию; существующие версии не мутируются.
//
// Инварианты (проверяются engine.Validate при создании):
//   - непустое имя и непустой набор шагов
//   - ровно один шаг типа "start"
//   - хотя бы один шаг типа "end"
//   - все connections ссылаются на существующие шаги
type Template struct {
	// ID — уникальный идентификатор шаблона.
	ID uuid.UUID `json:"id"`

	// Name — имя шаблона (например, "client-onboarding", "monthly-close").
	Name string `json:"name"`

	// Category — категория для группировки ("onboarding", "compliance", ...).
	Category string `json:"category,omitempty"`

	// Version — номер версии. Автоинкремент при публикации новой версии.
	Version int `json:"version"`

	// Description — описание назначения шаблона.
	Description string `json:"description,omitempty"`

	// Steps — шаги процесса.
	Steps []Step `json:"steps"`

	// Connections — направленные связи между шагами.
	Connections []Connection `json:"connections"`

	// Variables — объявленные переменные процесса.
	Variables []Variable `json:"variables,omitempty"`

	// Triggers — способы запуска: manual, scheduled, event.
	Triggers []Trigger `json:"triggers,omitempty"`

	// Settings — политики выполнения (retry, escalation, параллелизм).
	Settings Settings `json:"settings"`

	// OrganizationID — организация-владелец. Nil для системных шаблонов.
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// StepType — тип шага.
type StepType string

// Типы шагов.
const (
	StepTypeStart        StepType = "start"
	StepTypeTask         StepType = "task"
	StepTypeDecision     StepType = "decision"
	StepTypeParallel     StepType = "parallel"
	StepTypeMerge        StepType = "merge"
	StepTypeEnd          StepType = "end"
	StepTypeDelay        StepType = "delay"
	StepTypeNotification StepType = "notification"
	StepTypeAutomation   StepType = "automation"
)

// Step — узел в графе шаблона.
type Step struct {
	// ID — уникальный идентификатор шага в рамках шаблона.
	ID string `json:"id"`

	// Type — тип шага, определяет behavior при выполнении.
	Type StepType `json:"type"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name"`

	// Configuration — параметры, специфичные для типа шага.
	// Для task: title, description; для delay: delay, unit;
	// для automation: automationType и параметры коллаборатора.
	Configuration map[string]any `json:"configuration,omitempty"`

	// Conditions — условия ветвления (только для decision-шагов).
	// Вычисляются в порядке объявления, первая истинная побеждает.
	Conditions []Condition `json:"conditions,omitempty"`

	// Assignee — исполнитель: id пользователя, роль или "auto".
	Assignee string `json:"assignee,omitempty"`

	// Timeout — рекомендательный таймаут шага.
	// Контроллер его не форсирует; потребляется behavior'ом
	// (например, task-шаг выставляет срок исполнения задания).
	Timeout *StepTimeout `json:"timeout,omitempty"`

	// Dependencies — ID шагов, которые должны завершиться до запуска
	// этого шага. Независимы от connections; используются для
	// синхронизации fan-in после параллельных веток.
	Dependencies []string `json:"dependencies,omitempty"`

	// Position — координаты шага для внешних редакторов.
	// Движком не интерпретируется, хранится как есть.
	Position map[string]float64 `json:"position,omitempty"`
}

// StepTimeout — рекомендательный таймаут шага.
type StepTimeout struct {
	// Duration — величина таймаута.
	Duration int `json:"duration"`

	// Unit — единица измерения: "minutes", "hours", "days".
	Unit string `json:"unit"`

	// Action — что делать при превышении: "escalate", "skip", "fail".
	Action string `json:"action,omitempty"`
}

// AsDuration переводит таймаут в time.Duration.
// Неизвестная единица трактуется как минуты.
func (t StepTimeout) AsDuration() time.Duration {
	d := time.Duration(t.Duration)
	switch t.Unit {
	case "hours":
		return d * time.Hour
	case "days":
		return d * 24 * time.Hour
	default:
		return d * time.Minute
	}
}

// Connection — направленная связь (sourceStepID → targetStepID).
//
// Несколько исходящих связей из одного шага выражают ветвление
// (fan-out); несколько входящих — схождение (fan-in).
type Connection struct {
	// SourceStepID — шаг-источник.
	SourceStepID string `json:"source_step_id"`

	// TargetStepID — шаг-приёмник.
	TargetStepID string `json:"target_step_id"`

	// Condition — необязательный guard. Связь открывается только
	// если условие истинно.
	Condition *Condition `json:"condition,omitempty"`

	// Label — метка связи. Для связей из decision-шага метка
	// сопоставляется с выбранным путём ("default", имя условия).
	Label string `json:"label,omitempty"`
}

// Condition — условие вида (field, operator, value).
//
// Field разрешается относительно состояния execution:
//   - "variables.<name>" — переменная процесса
//   - "context.<name>"   — поле бизнес-контекста
//   - иначе              — атрибут самого execution (status, assigned_to, ...)
type Condition struct {
	// Name — имя условия (метка пути для decision-шагов).
	Name string `json:"name,omitempty"`

	// Field — путь к полю.
	Field string `json:"field"`

	// Operator — оператор сравнения: equals, not_equals, greater_than,
	// less_than, contains, exists, in, not_in.
	Operator string `json:"operator"`

	// Value — значение для сравнения.
	Value any `json:"value,omitempty"`

	// LogicalOperator — связка со следующим условием в списке:
	// "and" (по умолчанию) или "or".
	LogicalOperator string `json:"logical_operator,omitempty"`
}

// VariableScope — область видимости переменной.
type VariableScope string

const (
	// VariableScopeWorkflow — переменная живёт весь execution.
	VariableScopeWorkflow VariableScope = "workflow"

	// VariableScopeStep — переменная локальна для шага.
	VariableScopeStep VariableScope = "step"
)

// Variable — объявление переменной процесса.
type Variable struct {
	// Name — имя переменной.
	Name string `json:"name"`

	// Type — тип: "string", "number", "boolean", "date", "object".
	Type string `json:"type"`

	// Scope — область видимости.
	Scope VariableScope `json:"scope,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Required — обязательная ли переменная при запуске.
	Required bool `json:"required,omitempty"`
}

// TriggerType — тип триггера запуска.
type TriggerType string

const (
	// TriggerTypeManual — запуск пользователем через API/CLI.
	TriggerTypeManual TriggerType = "manual"

	// TriggerTypeScheduled — запуск по расписанию (cron/интервал).
	TriggerTypeScheduled TriggerType = "scheduled"

	// TriggerTypeEvent — запуск по внешнему событию.
	TriggerTypeEvent TriggerType = "event"
)

// Trigger — объявление способа запуска шаблона.
type Trigger struct {
	// Type — тип триггера.
	Type TriggerType `json:"type"`

	// CronExpr — cron-выражение (для scheduled).
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах (для scheduled, если нет cron).
	IntervalSec int `json:"interval_sec,omitempty"`

	// EventName — имя события (для event).
	EventName string `json:"event_name,omitempty"`
}

// Settings — политики выполнения шаблона.
type Settings struct {
	// AllowParallel — разрешено ли несколько одновременных executions
	// одного шаблона в одном контексте.
	AllowParallel bool `json:"allow_parallel,omitempty"`

	// Retry — политика повторных попыток для упавших шагов.
	Retry RetrySettings `json:"retry"`

	// EscalationLevels — лестница эскалации. Применяется по порядку,
	// когда retry исчерпан.
	EscalationLevels []EscalationLevel `json:"escalation_levels,omitempty"`

	// NotifyOnCompletion — отправлять ли уведомление при завершении.
	NotifyOnCompletion bool `json:"notify_on_completion,omitempty"`

	// NotifyOnFailure — отправлять ли уведомление при падении.
	NotifyOnFailure bool `json:"notify_on_failure,omitempty"`
}

// RetrySettings — политика повторных попыток.
type RetrySettings struct {
	// Enabled — включён ли retry.
	Enabled bool `json:"enabled"`

	// MaxRetries — максимальное количество повторов (без учёта
	// первой попытки). Упавший шаг повторяется ровно MaxRetries раз.
	MaxRetries int `json:"max_retries,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// EscalationLevel — уровень эскалации.
type EscalationLevel struct {
	// Level — порядковый номер уровня (1, 2, ...).
	Level int `json:"level"`

	// Assignee — кому переназначается шаг на этом уровне.
	Assignee string `json:"assignee"`

	// NotifyAfterMin — через сколько минут напомнить (0 — сразу).
	NotifyAfterMin int `json:"notify_after_min,omitempty"`
}

// StartStep возвращает единственный start-шаг шаблона.
// Для валидного шаблона он всегда существует.
func (t *Template) StartStep() *Step {
	for i := range t.Steps {
		if t.Steps[i].Type == StepTypeStart {
			return &t.Steps[i]
		}
	}
	return nil
}

// StepByID возвращает шаг по ID или nil.
func (t *Template) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// ConnectionsFrom возвращает исходящие связи шага.
func (t *Template) ConnectionsFrom(stepID string) []Connection {
	var out []Connection
	for _, c := range t.Connections {
		if c.SourceStepID == stepID {
			out = append(out, c)
		}
	}
	return out
}

// EscalationLevelAfter возвращает следующий уровень эскалации после level.
// Nil, если лестница исчерпана.
func (t *Template) EscalationLevelAfter(level int) *EscalationLevel {
	var next *EscalationLevel
	for i := range t.Settings.EscalationLevels {
		l := &t.Settings.EscalationLevels[i]
		if l.Level > level && (next == nil || l.Level < next.Level) {
			next = l
		}
	}
	return next
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepExecution — запись об одном вызове шага внутри execution.
//
// Создаётся контроллером при диспетчеризации шага и мутируется
// только контроллером и step behavior'ом; внешние компоненты
// читают её, но никогда не изменяют.
type StepExecution struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ExecutionID — ссылка на родительский execution.
	ExecutionID uuid.UUID `json:"execution_id"`

	// StepID — ID шага из шаблона.
	StepID string `json:"step_id"`

	// Name — имя шага (копия Step.Name для удобства).
	Name string `json:"name,omitempty"`

	// Type — тип шага.
	Type StepType `json:"type"`

	// Status — текущий статус.
	Status StepStatus `json:"status"`

	// AssignedTo — исполнитель шага (меняется при эскалации).
	AssignedTo string `json:"assigned_to,omitempty"`

	// Inputs — входы шага: переменные execution + контекст + конфигурация.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs — результат шага; вливается обратно в переменные execution.
	Outputs map[string]any `json:"outputs,omitempty"`

	// ErrorMessage — текст последней ошибки.
	ErrorMessage string `json:"error_message,omitempty"`

	// RetryCount — количество выполненных повторов.
	RetryCount int `json:"retry_count"`

	// EscalationLevel — текущий уровень эскалации (0 — не эскалировался).
	EscalationLevel int `json:"escalation_level"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения шага.
func (s *StepExecution) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// IsFinished возвращает true, если шаг в терминальном статусе.
func (s *StepExecution) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkRunning переводит шаг в RUNNING.
func (s *StepExecution) MarkRunning() {
	now := time.Now()
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// MarkCompleted переводит шаг в COMPLETED с результатами.
func (s *StepExecution) MarkCompleted(outputs map[string]any) {
	now := time.Now()
	s.Status = StepStatusCompleted
	s.FinishedAt = &now
	s.Outputs = outputs
	s.ErrorMessage = ""
}

// MarkFailed переводит шаг в FAILED с ошибкой.
func (s *StepExecution) MarkFailed(err string) {
	now := time.Now()
	s.Status = StepStatusFailed
	s.FinishedAt = &now
	s.ErrorMessage = err
}

// MarkSkipped переводит шаг в SKIPPED.
func (s *StepExecution) MarkSkipped() {
	now := time.Now()
	s.Status = StepStatusSkipped
	s.FinishedAt = &now
}

// MarkCancelled переводит шаг в CANCELLED.
func (s *StepExecution) MarkCancelled() {
	now := time.Now()
	s.Status = StepStatusCancelled
	s.FinishedAt = &now
}

// ResetForRetry подготавливает шаг к повторной попытке:
// инкрементирует счётчик, сбрасывает статус и время завершения.
// ErrorMessage сохраняется для аудита до следующего результата.
func (s *StepExecution) ResetForRetry() {
	s.RetryCount++
	s.Status = StepStatusReady
	s.StartedAt = nil
	s.FinishedAt = nil
}

// Escalate переводит шаг на следующий уровень эскалации
// с переназначением исполнителя.
func (s *StepExecution) Escalate(level int, assignee string) {
	s.EscalationLevel = level
	s.AssignedTo = assignee
	s.Status = StepStatusReady
	s.StartedAt = nil
	s.FinishedAt = nil
}

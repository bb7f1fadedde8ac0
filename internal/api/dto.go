package api

import (
	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// Request-структуры API. Ответы сериализуют доменные типы напрямую:
// у них полные json-теги, и форма на проводе совпадает с доменной.

// CreateTemplateRequest — запрос на создание шаблона (версия 1).
type CreateTemplateRequest struct {
	Name           string              `json:"name"`
	Category       string              `json:"category,omitempty"`
	Description    string              `json:"description,omitempty"`
	Steps          []domain.Step       `json:"steps"`
	Connections    []domain.Connection `json:"connections"`
	Variables      []domain.Variable   `json:"variables,omitempty"`
	Triggers       []domain.Trigger    `json:"triggers,omitempty"`
	Settings       domain.Settings     `json:"settings"`
	OrganizationID *uuid.UUID          `json:"organization_id,omitempty"`
}

// CreateTemplateVersionRequest — запрос на публикацию новой версии.
// Поля nil наследуются от последней версии.
type CreateTemplateVersionRequest struct {
	Description *string             `json:"description,omitempty"`
	Steps       []domain.Step       `json:"steps,omitempty"`
	Connections []domain.Connection `json:"connections,omitempty"`
	Variables   []domain.Variable   `json:"variables,omitempty"`
	Triggers    []domain.Trigger    `json:"triggers,omitempty"`
	Settings    *domain.Settings    `json:"settings,omitempty"`
}

// StartExecutionRequest — запрос на запуск шаблона.
type StartExecutionRequest struct {
	// Version — версия шаблона. 0 — последняя.
	Version int `json:"version,omitempty"`

	// Variables — значения переменных, перекрывающие дефолты.
	Variables map[string]any `json:"variables,omitempty"`

	// Context — бизнес-контекст execution.
	Context domain.ExecutionContext `json:"context"`

	// AssignedTo — ответственный за execution.
	AssignedTo string `json:"assigned_to,omitempty"`
}

// ReasonRequest — тело pause- и cancel-команд.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateScheduleRequest — запрос на создание расписания.
type CreateScheduleRequest struct {
	Name           string         `json:"name,omitempty"`
	CronExpr       string         `json:"cron_expr,omitempty"`
	IntervalSec    int            `json:"interval_sec,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	Enabled        *bool          `json:"enabled,omitempty"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление расписания.
// Поля nil не изменяются.
type UpdateScheduleRequest struct {
	Name        *string        `json:"name,omitempty"`
	CronExpr    *string        `json:"cron_expr,omitempty"`
	IntervalSec *int           `json:"interval_sec,omitempty"`
	Timezone    *string        `json:"timezone,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

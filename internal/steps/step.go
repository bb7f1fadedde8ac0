package steps

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// Ошибки шагов.
var (
	// ErrUnknownStepType — тип шага не найден в реестре.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrUnknownAutomationType — automation-шаг ссылается на
	// незарегистрированный automationType.
	ErrUnknownAutomationType = errors.New("unknown automation type")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Behavior — поведение одного типа шага.
//
// Каждый тип (start, task, decision, automation, delay, ...) реализует
// этот интерфейс. Behavior обязан проверять ctx.Done() на точках
// приостановки и быть идемпотентным: контроллер перезапускает шаг
// с нуля после resume.
type Behavior interface {
	// Type возвращает тип шага.
	Type() domain.StepType

	// Execute выполняет шаг и возвращает результат.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// Step — определение шага из шаблона.
	Step *domain.Step

	// Execution — состояние execution на момент диспетчеризации.
	// Behaviors читают его (условия, контекст), но не мутируют.
	Execution *domain.Execution

	// Inputs — уже разрешённые входы (engine.ResolveInputs).
	Inputs map[string]any
}

// Response — результат выполнения шага.
type Response struct {
	// Outputs — выходные данные; контроллер вливает их
	// в переменные execution.
	Outputs map[string]any
}

// --- Контракты коллабораторов ---
//
// Движок зависит от внешних систем только через эти узкие интерфейсы;
// их реализации живут в internal/collab и не влияют на семантику шагов.

// WorkItemStore — персистентность рабочих заданий.
type WorkItemStore interface {
	// Create сохраняет новое задание.
	Create(ctx context.Context, item *domain.WorkItem) error

	// FindByStep возвращает задание шага, если оно уже создавалось.
	// (nil, nil) — задания нет.
	FindByStep(ctx context.Context, executionID uuid.UUID, stepID string) (*domain.WorkItem, error)
}

// Notifier — доставка уведомлений.
type Notifier interface {
	// Send отправляет payload получателям. Возвращает true при успехе.
	Send(ctx context.Context, recipients []string, payload map[string]any) (bool, error)
}

// DocumentGenerator — генерация документов.
type DocumentGenerator interface {
	// Generate создаёт документ по ссылке на шаблон и данным.
	// Возвращает идентификатор документа.
	Generate(ctx context.Context, templateRef string, data map[string]any) (string, error)
}

// DataSyncer — синхронизация данных с внешними системами.
type DataSyncer interface {
	// Sync выполняет синхронизацию по спецификации.
	// Возвращает количество обработанных записей.
	Sync(ctx context.Context, spec map[string]any) (int, error)
}

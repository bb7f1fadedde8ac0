package steps

import (
	"context"

	"github.com/savrin/operato/internal/domain"
)

// Структурные шаги: start, end, parallel и merge не выполняют работы,
// их смысл реализует контроллер (переходы, fan-out, fan-in, завершение).
// Поведения завершаются мгновенно с пустыми outputs.

// StartBehavior — точка входа шаблона.
type StartBehavior struct{}

// NewStartBehavior создаёт новый StartBehavior.
func NewStartBehavior() *StartBehavior { return &StartBehavior{} }

// Type возвращает тип шага.
func (b *StartBehavior) Type() domain.StepType { return domain.StepTypeStart }

// Execute завершается сразу.
func (b *StartBehavior) Execute(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Outputs: map[string]any{}}, nil
}

// EndBehavior — точка завершения шаблона.
type EndBehavior struct{}

// NewEndBehavior создаёт новый EndBehavior.
func NewEndBehavior() *EndBehavior { return &EndBehavior{} }

// Type возвращает тип шага.
func (b *EndBehavior) Type() domain.StepType { return domain.StepTypeEnd }

// Execute завершается сразу; завершение execution фиксирует контроллер.
func (b *EndBehavior) Execute(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Outputs: map[string]any{}}, nil
}

// ParallelBehavior — точка ветвления.
//
// Сам fan-out выполняет контроллер: все исходящие соединения
// parallel-шага становятся eligible одновременно.
type ParallelBehavior struct{}

// NewParallelBehavior создаёт новый ParallelBehavior.
func NewParallelBehavior() *ParallelBehavior { return &ParallelBehavior{} }

// Type возвращает тип шага.
func (b *ParallelBehavior) Type() domain.StepType { return domain.StepTypeParallel }

// Execute завершается сразу.
func (b *ParallelBehavior) Execute(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Outputs: map[string]any{}}, nil
}

// MergeBehavior — точка схождения веток.
//
// Ожидание веток реализует контроллер через Dependencies шага:
// merge диспетчеризуется только когда все зависимости завершены.
type MergeBehavior struct{}

// NewMergeBehavior создаёт новый MergeBehavior.
func NewMergeBehavior() *MergeBehavior { return &MergeBehavior{} }

// Type возвращает тип шага.
func (b *MergeBehavior) Type() domain.StepType { return domain.StepTypeMerge }

// Execute завершается сразу.
func (b *MergeBehavior) Execute(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Outputs: map[string]any{}}, nil
}

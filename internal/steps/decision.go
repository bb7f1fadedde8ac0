package steps

import (
	"context"
	"fmt"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
)

// DefaultPath — путь, выбираемый когда ни одно условие не истинно.
const DefaultPath = "default"

// Ключ output с выбранным путём.
const OutputSelectedPath = "selected_path"

// DecisionBehavior — шаг ветвления по условиям.
//
// Условия шага вычисляются в порядке объявления; первое истинное
// определяет выбранный путь (имя условия). Если ни одно не истинно,
// выбирается "default". Контроллер сопоставляет выбранный путь
// с метками исходящих связей.
type DecisionBehavior struct{}

// NewDecisionBehavior создаёт новый DecisionBehavior.
func NewDecisionBehavior() *DecisionBehavior {
	return &DecisionBehavior{}
}

// Type возвращает тип шага.
func (b *DecisionBehavior) Type() domain.StepType { return domain.StepTypeDecision }

// Execute вычисляет условия и выбирает путь.
func (b *DecisionBehavior) Execute(_ context.Context, req *Request) (*Response, error) {
	selected := DefaultPath
	results := make(map[string]bool, len(req.Step.Conditions))

	for i, cond := range req.Step.Conditions {
		ok := engine.Evaluate(cond, req.Execution)
		results[b.pathName(cond, i)] = ok
		if ok && selected == DefaultPath {
			selected = b.pathName(cond, i)
		}
	}

	return &Response{Outputs: map[string]any{
		OutputSelectedPath: selected,
		"conditions":       results,
	}}, nil
}

// pathName возвращает имя пути для условия.
// Безымянные условия получают позиционное имя.
func (b *DecisionBehavior) pathName(cond domain.Condition, idx int) string {
	if cond.Name != "" {
		return cond.Name
	}
	return fmt.Sprintf("condition_%d", idx)
}

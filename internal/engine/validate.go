package engine

import (
	"fmt"
	"strings"

	"github.com/savrin/operato/internal/domain"
)

// Допустимые типы шагов.
var validStepTypes = map[domain.StepType]bool{
	domain.StepTypeStart:        true,
	domain.StepTypeTask:         true,
	domain.StepTypeDecision:     true,
	domain.StepTypeParallel:     true,
	domain.StepTypeMerge:        true,
	domain.StepTypeEnd:          true,
	domain.StepTypeDelay:        true,
	domain.StepTypeNotification: true,
	domain.StepTypeAutomation:   true,
}

// Validate выполняет полную структурную валидацию шаблона.
//
// Проверяет:
//   - непустое имя и непустой набор шагов
//   - уникальность и непустоту ID шагов
//   - корректность типов шагов
//   - ровно один start-шаг, хотя бы один end-шаг
//   - все connections ссылаются на существующие шаги
//   - все dependencies ссылаются на существующие шаги
//
// Валидация выполняется один раз при создании шаблона; шаблон,
// не прошедший её, не сохраняется и никогда не выполняется.
func Validate(t *domain.Template) error {
	if t == nil {
		return ErrEmptySteps
	}

	if strings.TrimSpace(t.Name) == "" {
		return NewValidationError("", "name", "template name is empty", ErrEmptyName)
	}

	if len(t.Steps) == 0 {
		return NewValidationError("", "steps", "template has no steps", ErrEmptySteps)
	}

	stepIDs := make(map[string]bool, len(t.Steps))
	var startCount, endCount int

	for i := range t.Steps {
		step := &t.Steps[i]

		if step.ID == "" {
			return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
		}
		if stepIDs[step.ID] {
			return NewValidationError(step.ID, "id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true

		if !validStepTypes[step.Type] {
			return NewValidationError(step.ID, "type",
				fmt.Sprintf("unknown step type: %s", step.Type), ErrInvalidTemplate)
		}

		switch step.Type {
		case domain.StepTypeStart:
			startCount++
		case domain.StepTypeEnd:
			endCount++
		}
	}

	if startCount == 0 {
		return NewValidationError("", "steps", "template has no start step", ErrNoStartStep)
	}
	if startCount > 1 {
		return NewValidationError("", "steps",
			fmt.Sprintf("template has %d start steps, expected exactly one", startCount),
			ErrMultipleStartSteps)
	}
	if endCount == 0 {
		return NewValidationError("", "steps", "template has no end step", ErrNoEndStep)
	}

	for _, conn := range t.Connections {
		if !stepIDs[conn.SourceStepID] {
			return NewValidationError(conn.SourceStepID, "connections",
				fmt.Sprintf("connection source references unknown step: %s", conn.SourceStepID),
				ErrDanglingConnection)
		}
		if !stepIDs[conn.TargetStepID] {
			return NewValidationError(conn.TargetStepID, "connections",
				fmt.Sprintf("connection target references unknown step: %s", conn.TargetStepID),
				ErrDanglingConnection)
		}
	}

	for i := range t.Steps {
		step := &t.Steps[i]
		for _, dep := range step.Dependencies {
			if !stepIDs[dep] {
				return NewValidationError(step.ID, "dependencies",
					fmt.Sprintf("depends on unknown step: %s", dep), ErrUnknownDependency)
			}
		}
	}

	return nil
}

// SeedVariables собирает стартовые переменные execution: defaults из
// объявлений шаблона, перекрытые значениями вызывающего.
//
// Возвращает ErrMissingVariable, если обязательная переменная не имеет
// ни default, ни переданного значения.
func SeedVariables(t *domain.Template, supplied map[string]any) (map[string]any, error) {
	vars := make(map[string]any, len(t.Variables)+len(supplied))

	for _, decl := range t.Variables {
		if decl.Default != nil {
			vars[decl.Name] = decl.Default
		}
	}
	for k, v := range supplied {
		vars[k] = v
	}

	for _, decl := range t.Variables {
		if !decl.Required {
			continue
		}
		if _, ok := vars[decl.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariable, decl.Name)
		}
	}

	return vars, nil
}

// IsValidStepType проверяет, является ли тип шага допустимым.
func IsValidStepType(stepType domain.StepType) bool {
	return validStepTypes[stepType]
}

package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidTemplate — шаблон не прошёл структурную валидацию.
// Все конкретные ошибки валидации оборачивают её, поэтому
// errors.Is(err, ErrInvalidTemplate) работает для любой из них.
var ErrInvalidTemplate = errors.New("invalid template")

// Конкретные ошибки валидации шаблона.
var (
	// ErrEmptyName — шаблон без имени.
	ErrEmptyName = fmt.Errorf("%w: empty name", ErrInvalidTemplate)

	// ErrEmptySteps — шаблон без шагов.
	ErrEmptySteps = fmt.Errorf("%w: no steps", ErrInvalidTemplate)

	// ErrEmptyStepID — шаг без ID.
	ErrEmptyStepID = fmt.Errorf("%w: step has empty ID", ErrInvalidTemplate)

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = fmt.Errorf("%w: duplicate step ID", ErrInvalidTemplate)

	// ErrNoStartStep — нет шага типа start.
	ErrNoStartStep = fmt.Errorf("%w: no start step", ErrInvalidTemplate)

	// ErrMultipleStartSteps — больше одного шага типа start.
	ErrMultipleStartSteps = fmt.Errorf("%w: multiple start steps", ErrInvalidTemplate)

	// ErrNoEndStep — нет ни одного шага типа end.
	ErrNoEndStep = fmt.Errorf("%w: no end step", ErrInvalidTemplate)

	// ErrDanglingConnection — connection ссылается на несуществующий шаг.
	ErrDanglingConnection = fmt.Errorf("%w: connection references unknown step", ErrInvalidTemplate)

	// ErrUnknownDependency — dependency ссылается на несуществующий шаг.
	ErrUnknownDependency = fmt.Errorf("%w: step depends on unknown step", ErrInvalidTemplate)
)

// ErrMissingVariable — не передана обязательная переменная.
// Проверяется при запуске execution, не при валидации шаблона.
var ErrMissingVariable = errors.New("required variable missing")

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага (пусто для ошибок уровня шаблона)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

package controller

import "errors"

// Ошибки контроллера.
var (
	// ErrTemplateNotFound — запуск ссылается на несуществующий шаблон.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrExecutionNotFound — execution не найден.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyActive — execution уже обрабатывается.
	ErrExecutionAlreadyActive = errors.New("execution already active")

	// ErrInvalidStateTransition — операция недопустима из текущего
	// статуса execution (например, pause не из running).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrExecutionNotPending — processExecution вызван для execution
	// не в статусе pending.
	ErrExecutionNotPending = errors.New("execution is not pending")
)

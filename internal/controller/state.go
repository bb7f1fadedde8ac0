package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// ExecState — состояние одного активного execution в памяти.
//
// Создаётся когда контроллер начинает обработку execution и удаляется
// при выходе из продвижения (терминальный статус или pause).
//
// Содержит кэш данных из БД (Execution, Template) и записи шагов.
// Продвижение execution выполняет одна горутина; мьютекс защищает
// доступ со стороны lifecycle-операций (pause, cancel).
type ExecState struct {
	// Exec — execution из БД.
	Exec *domain.Execution

	// Template — версия шаблона, по которой идёт выполнение.
	Template *domain.Template

	// records — записи шагов по stepID.
	records map[string]*domain.StepExecution

	// cancel — отмена контекста продвижения. Дёргается при cancel
	// execution и при остановке контроллера; прерывает delay-шаги.
	cancel context.CancelFunc

	mu sync.RWMutex
}

// NewExecState создаёт состояние для execution.
func NewExecState(exec *domain.Execution, tpl *domain.Template) *ExecState {
	return &ExecState{
		Exec:     exec,
		Template: tpl,
		records:  make(map[string]*domain.StepExecution),
	}
}

// Restore загружает существующие записи шагов (после рестарта
// или при resume в другом процессе).
func (s *ExecState) Restore(records []domain.StepExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		rec := &records[i]
		s.records[rec.StepID] = rec
	}
}

// Record возвращает запись шага или nil.
func (s *ExecState) Record(stepID string) *domain.StepExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[stepID]
}

// SetRecord сохраняет запись шага в кэше.
func (s *ExecState) SetRecord(rec *domain.StepExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.StepID] = rec
}

// Lookup возвращает функцию поиска записей для dependency resolver.
func (s *ExecState) Lookup() func(stepID string) (*domain.StepExecution, bool) {
	return func(stepID string) (*domain.StepExecution, bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		rec, ok := s.records[stepID]
		return rec, ok
	}
}

// CompletedSteps возвращает количество завершённых шагов
// (различных stepID).
func (s *ExecState) CompletedSteps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.Status == domain.StepStatusCompleted {
			n++
		}
	}
	return n
}

// Status возвращает текущий статус execution.
func (s *ExecState) Status() domain.ExecutionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Exec.Status
}

// ExecutionID возвращает ID execution.
func (s *ExecState) ExecutionID() uuid.UUID {
	return s.Exec.ID
}

// Cancel прерывает контекст продвижения, если он установлен.
func (s *ExecState) Cancel() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// setCancel сохраняет функцию отмены контекста продвижения.
func (s *ExecState) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// Stats возвращает статистику выполнения.
func (s *ExecState) Stats() ExecStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ExecStats{TotalSteps: len(s.Template.Steps)}
	for _, rec := range s.records {
		switch rec.Status {
		case domain.StepStatusCompleted:
			stats.CompletedSteps++
		case domain.StepStatusRunning:
			stats.RunningSteps++
		case domain.StepStatusFailed:
			stats.FailedSteps++
		}
	}
	return stats
}

// ExecStats — статистика выполнения execution.
type ExecStats struct {
	TotalSteps     int
	CompletedSteps int
	RunningSteps   int
	FailedSteps    int
}

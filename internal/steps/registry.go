package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/savrin/operato/internal/domain"
)

// Registry — реестр поведений шагов.
//
// Позволяет регистрировать и получать реализации Behavior по типу шага.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	behaviors map[domain.StepType]Behavior
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		behaviors: make(map[domain.StepType]Behavior),
	}
}

// Collaborators — внешние зависимости стандартных поведений.
type Collaborators struct {
	WorkItems WorkItemStore
	Notifier  Notifier
	Documents DocumentGenerator
	DataSync  DataSyncer
}

// DefaultRegistry создаёт реестр со всеми стандартными поведениями.
func DefaultRegistry(c Collaborators) *Registry {
	r := NewRegistry()

	// Структурные шаги без внешних эффектов
	r.Register(NewStartBehavior())
	r.Register(NewEndBehavior())
	r.Register(NewParallelBehavior())
	r.Register(NewMergeBehavior())

	r.Register(NewTaskBehavior(c.WorkItems))
	r.Register(NewDecisionBehavior())
	r.Register(NewDelayBehavior())
	r.Register(NewNotificationBehavior(c.Notifier))
	r.Register(NewAutomationBehavior(c.Notifier, c.Documents, c.DataSync))

	return r
}

// Register регистрирует поведение в реестре.
// Если поведение с таким типом уже существует, оно будет перезаписано.
func (r *Registry) Register(b Behavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.behaviors[b.Type()] = b
}

// Get возвращает поведение по типу шага.
// Возвращает ErrUnknownStepType, если поведение не найдено.
func (r *Registry) Get(stepType domain.StepType) (Behavior, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.behaviors[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}

	return b, nil
}

// Has проверяет, зарегистрировано ли поведение.
func (r *Registry) Has(stepType domain.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.behaviors[stepType]
	return exists
}

// Types возвращает список всех зарегистрированных типов шагов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.behaviors))
	for t := range r.behaviors {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных поведений.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.behaviors)
}

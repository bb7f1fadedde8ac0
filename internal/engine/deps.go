package engine

import "github.com/savrin/operato/internal/domain"

// StepExecutionLookup возвращает запись StepExecution по ID шага.
// Второе значение false, если шаг ещё не диспетчеризовался.
type StepExecutionLookup func(stepID string) (*domain.StepExecution, bool)

// DependenciesSatisfied проверяет, удовлетворены ли объявленные
// зависимости шага.
//
// Шаг без dependencies готов сразу. Иначе для каждой зависимости
// требуется существующая запись StepExecution в статусе COMPLETED;
// отсутствующая или незавершённая зависимость даёт false.
//
// Проверка независима от connections и гейтит диспетчеризацию шага —
// так merge-шаг ждёт все параллельные ветки (fan-in).
func DependenciesSatisfied(step *domain.Step, lookup StepExecutionLookup) bool {
	if len(step.Dependencies) == 0 {
		return true
	}

	for _, dep := range step.Dependencies {
		rec, ok := lookup(dep)
		if !ok || rec == nil {
			return false
		}
		if rec.Status != domain.StepStatusCompleted {
			return false
		}
	}
	return true
}

// Progress вычисляет прогресс execution: round(100 * completed / total).
// Total — общее количество шагов шаблона; completed — количество
// записей StepExecution в статусе COMPLETED.
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(completed)*100/float64(total) + 0.5)
}

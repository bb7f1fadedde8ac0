package engine

import (
	"strconv"
	"strings"

	"github.com/savrin/operato/internal/domain"
)

// Операторы условий.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpExists      = "exists"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Evaluate вычисляет условие относительно состояния execution.
//
// Вычисление fail-closed: неизвестный оператор, неразрешимое поле или
// несравнимые значения дают false, а не ошибку. Некорректное условие
// не должно ронять движок — оно просто не открывает свою ветку.
//
// Один и тот же evaluator используется для guard'ов connections
// и для выбора пути decision-шагом.
func Evaluate(cond domain.Condition, exec *domain.Execution) bool {
	value, found := resolveField(cond.Field, exec)

	switch cond.Operator {
	case OpExists:
		return found && value != nil
	case OpEquals:
		return found && looseEqual(value, cond.Value)
	case OpNotEquals:
		return found && !looseEqual(value, cond.Value)
	case OpGreaterThan:
		a, b, ok := bothNumbers(value, cond.Value)
		return found && ok && a > b
	case OpLessThan:
		a, b, ok := bothNumbers(value, cond.Value)
		return found && ok && a < b
	case OpContains:
		return found && contains(value, cond.Value)
	case OpIn:
		return found && inList(value, cond.Value)
	case OpNotIn:
		return found && !inList(value, cond.Value)
	default:
		// Неизвестный оператор — ветка не открывается.
		return false
	}
}

// EvaluateAll сворачивает список условий по их logical_operator.
//
// Условия вычисляются слева направо; связка берётся из текущего
// условия и соединяет его со следующим ("and" по умолчанию).
// Пустой список — true.
func EvaluateAll(conds []domain.Condition, exec *domain.Execution) bool {
	if len(conds) == 0 {
		return true
	}

	result := Evaluate(conds[0], exec)
	for i := 1; i < len(conds); i++ {
		next := Evaluate(conds[i], exec)
		if strings.EqualFold(conds[i-1].LogicalOperator, "or") {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// resolveField разрешает путь к полю относительно execution.
//
//	"variables.<name>" — переменная процесса
//	"context.<name>"   — поле бизнес-контекста
//	иначе              — атрибут самого execution
func resolveField(field string, exec *domain.Execution) (any, bool) {
	if exec == nil || field == "" {
		return nil, false
	}

	if name, ok := strings.CutPrefix(field, "variables."); ok {
		v, found := exec.Variables[name]
		return v, found
	}
	if name, ok := strings.CutPrefix(field, "context."); ok {
		return exec.Context.Field(name)
	}
	return exec.Attribute(field)
}

// looseEqual сравнивает значения с числовой коэрцией:
// JSON-декодер даёт float64, переменные могут быть int.
func looseEqual(a, b any) bool {
	if af, bf, ok := bothNumbers(a, b); ok {
		return af == bf
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	return a == b
}

// bothNumbers приводит оба значения к float64, если возможно.
func bothNumbers(a, b any) (float64, float64, bool) {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	return af, bf, aok && bok
}

// toNumber приводит значение к float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// contains — подстрока для строк, членство для слайсов.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if n, ok := needle.(string); ok {
			return strings.Contains(h, n)
		}
		return false
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		if n, ok := needle.(string); ok {
			for _, item := range h {
				if item == n {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// inList проверяет членство значения в списке условия.
func inList(value, list any) bool {
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if looseEqual(value, item) {
				return true
			}
		}
	case []string:
		if s, ok := value.(string); ok {
			for _, item := range l {
				if item == s {
					return true
				}
			}
		}
	}
	return false
}

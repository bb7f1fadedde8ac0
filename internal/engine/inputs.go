package engine

import "github.com/savrin/operato/internal/domain"

// ResolveInputs собирает входы шага перед диспетчеризацией.
//
// Слияние в три слоя, поздний слой побеждает:
//  1. переменные execution
//  2. бизнес-контекст под ключом "context"
//  3. configuration самого шага
//
// Configuration сливается последней: статические параметры шага
// всегда достигают behavior'а нетронутыми, а переменные execution
// видны там, где шаблон не задал собственного значения.
func ResolveInputs(step *domain.Step, exec *domain.Execution) map[string]any {
	inputs := make(map[string]any, len(exec.Variables)+len(step.Configuration)+1)

	for k, v := range exec.Variables {
		inputs[k] = v
	}

	inputs["context"] = exec.Context.AsMap()

	for k, v := range step.Configuration {
		inputs[k] = v
	}

	return inputs
}

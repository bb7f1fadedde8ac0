package engine

import (
	"testing"

	"github.com/savrin/operato/internal/domain"
)

func lookupFrom(records map[string]*domain.StepExecution) StepExecutionLookup {
	return func(stepID string) (*domain.StepExecution, bool) {
		rec, ok := records[stepID]
		return rec, ok
	}
}

func TestDependenciesSatisfied_NoDeps(t *testing.T) {
	step := &domain.Step{ID: "a", Type: domain.StepTypeTask}

	if !DependenciesSatisfied(step, lookupFrom(nil)) {
		t.Error("step without dependencies should be satisfied immediately")
	}
}

func TestDependenciesSatisfied_AllCompleted(t *testing.T) {
	step := &domain.Step{
		ID:           "merge",
		Type:         domain.StepTypeMerge,
		Dependencies: []string{"branch_a", "branch_b"},
	}
	records := map[string]*domain.StepExecution{
		"branch_a": {StepID: "branch_a", Status: domain.StepStatusCompleted},
		"branch_b": {StepID: "branch_b", Status: domain.StepStatusCompleted},
	}

	if !DependenciesSatisfied(step, lookupFrom(records)) {
		t.Error("all dependencies completed, expected satisfied")
	}
}

func TestDependenciesSatisfied_OneBranchPending(t *testing.T) {
	// Fan-in: merge не должен запускаться, пока завершена лишь одна ветка.
	step := &domain.Step{
		ID:           "merge",
		Type:         domain.StepTypeMerge,
		Dependencies: []string{"branch_a", "branch_b"},
	}
	records := map[string]*domain.StepExecution{
		"branch_a": {StepID: "branch_a", Status: domain.StepStatusCompleted},
		"branch_b": {StepID: "branch_b", Status: domain.StepStatusRunning},
	}

	if DependenciesSatisfied(step, lookupFrom(records)) {
		t.Error("merge must not be satisfied while a branch is still running")
	}
}

func TestDependenciesSatisfied_MissingRecord(t *testing.T) {
	step := &domain.Step{
		ID:           "merge",
		Dependencies: []string{"never_dispatched"},
	}

	if DependenciesSatisfied(step, lookupFrom(nil)) {
		t.Error("missing dependency record should yield false")
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 2, 50},
		{0, 0, 0},
	}

	for _, tt := range tests {
		if got := Progress(tt.completed, tt.total); got != tt.want {
			t.Errorf("Progress(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestResolveInputs_MergeOrder(t *testing.T) {
	step := &domain.Step{
		ID:   "notify",
		Type: domain.StepTypeNotification,
		Configuration: map[string]any{
			"channel": "email",
			"amount":  1, // конфигурация перекрывает переменную
		},
	}
	exec := testExecution()

	inputs := ResolveInputs(step, exec)

	if inputs["channel"] != "email" {
		t.Errorf("expected configuration value, got %v", inputs["channel"])
	}
	if inputs["amount"] != 1 {
		t.Errorf("configuration should win over variables, got %v", inputs["amount"])
	}
	if inputs["owner"] != "alice" {
		t.Errorf("variables should pass through, got %v", inputs["owner"])
	}

	ctx, ok := inputs["context"].(map[string]any)
	if !ok {
		t.Fatal("inputs should carry context under the 'context' key")
	}
	if ctx["client_id"] != "client-42" {
		t.Errorf("expected client_id in context, got %v", ctx["client_id"])
	}
}

package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

func testExecution() *domain.Execution {
	return &domain.Execution{
		ID:     uuid.New(),
		Status: domain.ExecutionStatusRunning,
		Variables: map[string]any{
			"amount":   float64(5000),
			"approved": true,
			"tags":     []any{"vip", "priority"},
			"owner":    "alice",
		},
		Context: domain.ExecutionContext{
			OrganizationID: uuid.New(),
			ClientID:       "client-42",
			Custom:         map[string]any{"tier": "gold"},
		},
		AssignedTo: "bob",
	}
}

func TestEvaluate_Operators(t *testing.T) {
	exec := testExecution()

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals string", domain.Condition{Field: "variables.owner", Operator: "equals", Value: "alice"}, true},
		{"equals mismatch", domain.Condition{Field: "variables.owner", Operator: "equals", Value: "carol"}, false},
		{"equals numeric coercion", domain.Condition{Field: "variables.amount", Operator: "equals", Value: 5000}, true},
		{"not_equals", domain.Condition{Field: "variables.owner", Operator: "not_equals", Value: "carol"}, true},
		{"greater_than true", domain.Condition{Field: "variables.amount", Operator: "greater_than", Value: 1000}, true},
		{"greater_than false", domain.Condition{Field: "variables.amount", Operator: "greater_than", Value: 9000}, false},
		{"less_than", domain.Condition{Field: "variables.amount", Operator: "less_than", Value: 9000}, true},
		{"contains slice", domain.Condition{Field: "variables.tags", Operator: "contains", Value: "vip"}, true},
		{"contains substring", domain.Condition{Field: "variables.owner", Operator: "contains", Value: "lic"}, true},
		{"exists", domain.Condition{Field: "variables.approved", Operator: "exists"}, true},
		{"exists missing", domain.Condition{Field: "variables.ghost", Operator: "exists"}, false},
		{"in", domain.Condition{Field: "variables.owner", Operator: "in", Value: []any{"alice", "bob"}}, true},
		{"not_in", domain.Condition{Field: "variables.owner", Operator: "not_in", Value: []any{"carol"}}, true},
		{"context field", domain.Condition{Field: "context.client_id", Operator: "equals", Value: "client-42"}, true},
		{"context custom field", domain.Condition{Field: "context.tier", Operator: "equals", Value: "gold"}, true},
		{"execution attribute", domain.Condition{Field: "status", Operator: "equals", Value: "running"}, true},
		{"assigned_to attribute", domain.Condition{Field: "assigned_to", Operator: "equals", Value: "bob"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.cond, exec); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

// Fail-closed: некорректное условие даёт false и никогда не паникует.
func TestEvaluate_FailClosed(t *testing.T) {
	exec := testExecution()

	tests := []struct {
		name string
		cond domain.Condition
	}{
		{"unknown operator", domain.Condition{Field: "variables.amount", Operator: "matches", Value: 1}},
		{"unresolvable field", domain.Condition{Field: "variables.missing", Operator: "equals", Value: 1}},
		{"unknown attribute", domain.Condition{Field: "nonsense", Operator: "equals", Value: 1}},
		{"empty field", domain.Condition{Operator: "equals", Value: 1}},
		{"incomparable greater_than", domain.Condition{Field: "variables.owner", Operator: "greater_than", Value: 5}},
		{"contains on number", domain.Condition{Field: "variables.amount", Operator: "contains", Value: "5"}},
		{"in with non-list", domain.Condition{Field: "variables.owner", Operator: "in", Value: "alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Evaluate(tt.cond, exec) {
				t.Errorf("malformed condition %+v should evaluate to false", tt.cond)
			}
		})
	}
}

func TestEvaluate_NilExecution(t *testing.T) {
	cond := domain.Condition{Field: "variables.x", Operator: "equals", Value: 1}
	if Evaluate(cond, nil) {
		t.Error("nil execution should evaluate to false")
	}
}

func TestEvaluateAll(t *testing.T) {
	exec := testExecution()

	// and (по умолчанию): обе истинны
	conds := []domain.Condition{
		{Field: "variables.amount", Operator: "greater_than", Value: 1000},
		{Field: "variables.owner", Operator: "equals", Value: "alice"},
	}
	if !EvaluateAll(conds, exec) {
		t.Error("expected true for and-chain of true conditions")
	}

	// and: одна ложная
	conds[1].Value = "carol"
	if EvaluateAll(conds, exec) {
		t.Error("expected false when one and-condition is false")
	}

	// or: первая ложная, вторая истинная
	conds = []domain.Condition{
		{Field: "variables.amount", Operator: "greater_than", Value: 9000, LogicalOperator: "or"},
		{Field: "variables.owner", Operator: "equals", Value: "alice"},
	}
	if !EvaluateAll(conds, exec) {
		t.Error("expected true for or-chain with one true condition")
	}

	// Пустой список — true
	if !EvaluateAll(nil, exec) {
		t.Error("empty condition list should be true")
	}
}

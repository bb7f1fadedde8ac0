package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// validTemplate возвращает минимальный валидный шаблон [start]→[task]→[end].
func validTemplate() *domain.Template {
	return &domain.Template{
		ID:      uuid.New(),
		Name:    "onboarding",
		Version: 1,
		Steps: []domain.Step{
			{ID: "start", Type: domain.StepTypeStart, Name: "Start"},
			{ID: "collect", Type: domain.StepTypeTask, Name: "Collect documents"},
			{ID: "end", Type: domain.StepTypeEnd, Name: "End"},
		},
		Connections: []domain.Connection{
			{SourceStepID: "start", TargetStepID: "collect"},
			{SourceStepID: "collect", TargetStepID: "end"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validTemplate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_EmptyName(t *testing.T) {
	tpl := validTemplate()
	tpl.Name = "   "

	err := Validate(tpl)
	if !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Error("validation errors should unwrap to ErrInvalidTemplate")
	}
}

func TestValidate_NoSteps(t *testing.T) {
	tpl := validTemplate()
	tpl.Steps = nil

	if err := Validate(tpl); !errors.Is(err, ErrEmptySteps) {
		t.Errorf("expected ErrEmptySteps, got %v", err)
	}
}

func TestValidate_StartStepInvariant(t *testing.T) {
	// Без start
	tpl := validTemplate()
	tpl.Steps[0].Type = domain.StepTypeTask
	if err := Validate(tpl); !errors.Is(err, ErrNoStartStep) {
		t.Errorf("expected ErrNoStartStep, got %v", err)
	}

	// Два start
	tpl = validTemplate()
	tpl.Steps[1].Type = domain.StepTypeStart
	if err := Validate(tpl); !errors.Is(err, ErrMultipleStartSteps) {
		t.Errorf("expected ErrMultipleStartSteps, got %v", err)
	}
}

func TestValidate_NoEndStep(t *testing.T) {
	tpl := validTemplate()
	tpl.Steps[2].Type = domain.StepTypeTask

	if err := Validate(tpl); !errors.Is(err, ErrNoEndStep) {
		t.Errorf("expected ErrNoEndStep, got %v", err)
	}
}

func TestValidate_DanglingConnection(t *testing.T) {
	tpl := validTemplate()
	tpl.Connections = append(tpl.Connections, domain.Connection{
		SourceStepID: "collect",
		TargetStepID: "ghost",
	})

	err := Validate(tpl)
	if !errors.Is(err, ErrDanglingConnection) {
		t.Errorf("expected ErrDanglingConnection, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("expected *ValidationError")
	}
	if verr.Field != "connections" {
		t.Errorf("expected field 'connections', got %q", verr.Field)
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	tpl := validTemplate()
	tpl.Steps = append(tpl.Steps, domain.Step{ID: "collect", Type: domain.StepTypeTask})

	if err := Validate(tpl); !errors.Is(err, ErrDuplicateStepID) {
		t.Errorf("expected ErrDuplicateStepID, got %v", err)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	tpl := validTemplate()
	tpl.Steps[2].Dependencies = []string{"ghost"}

	if err := Validate(tpl); !errors.Is(err, ErrUnknownDependency) {
		t.Errorf("expected ErrUnknownDependency, got %v", err)
	}
}

func TestValidate_UnknownStepType(t *testing.T) {
	tpl := validTemplate()
	tpl.Steps[1].Type = "subprocess"

	if err := Validate(tpl); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("expected ErrInvalidTemplate, got %v", err)
	}
}

func TestSeedVariables(t *testing.T) {
	tpl := validTemplate()
	tpl.Variables = []domain.Variable{
		{Name: "amount", Type: "number", Default: 100},
		{Name: "client_name", Type: "string", Required: true},
		{Name: "note", Type: "string"},
	}

	vars, err := SeedVariables(tpl, map[string]any{
		"client_name": "Acme",
		"amount":      5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if vars["amount"] != 5000 {
		t.Errorf("supplied value should override default, got %v", vars["amount"])
	}
	if vars["client_name"] != "Acme" {
		t.Errorf("expected client_name=Acme, got %v", vars["client_name"])
	}
	if _, ok := vars["note"]; ok {
		t.Error("optional variable without default should be absent")
	}
}

func TestSeedVariables_MissingRequired(t *testing.T) {
	tpl := validTemplate()
	tpl.Variables = []domain.Variable{
		{Name: "client_name", Type: "string", Required: true},
	}

	_, err := SeedVariables(tpl, nil)
	if !errors.Is(err, ErrMissingVariable) {
		t.Errorf("expected ErrMissingVariable, got %v", err)
	}
}

func TestSeedVariables_RequiredWithDefault(t *testing.T) {
	tpl := validTemplate()
	tpl.Variables = []domain.Variable{
		{Name: "region", Type: "string", Required: true, Default: "eu"},
	}

	vars, err := SeedVariables(tpl, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["region"] != "eu" {
		t.Errorf("expected default 'eu', got %v", vars["region"])
	}
}

package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// --- Фейки коллабораторов ---

type fakeWorkItemStore struct {
	items []*domain.WorkItem
	err   error
}

func (f *fakeWorkItemStore) Create(_ context.Context, item *domain.WorkItem) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeWorkItemStore) FindByStep(_ context.Context, executionID uuid.UUID, stepID string) (*domain.WorkItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, item := range f.items {
		if item.ExecutionID == executionID && item.StepID == stepID {
			return item, nil
		}
	}
	return nil, nil
}

type fakeNotifier struct {
	recipients []string
	payload    map[string]any
	err        error
}

func (f *fakeNotifier) Send(_ context.Context, recipients []string, payload map[string]any) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.recipients = recipients
	f.payload = payload
	return true, nil
}

type fakeDocGen struct {
	templateRef string
}

func (f *fakeDocGen) Generate(_ context.Context, templateRef string, _ map[string]any) (string, error) {
	f.templateRef = templateRef
	return "doc-123", nil
}

type fakeDataSync struct{}

func (f *fakeDataSync) Sync(_ context.Context, _ map[string]any) (int, error) {
	return 7, nil
}

func stepsExecution() *domain.Execution {
	return &domain.Execution{
		ID:     uuid.New(),
		Status: domain.ExecutionStatusRunning,
		Variables: map[string]any{
			"amount": float64(5000),
		},
		Context: domain.ExecutionContext{
			OrganizationID: uuid.New(),
		},
	}
}

// --- Registry ---

func TestRegistry_DefaultCoversAllTypes(t *testing.T) {
	r := DefaultRegistry(Collaborators{
		WorkItems: &fakeWorkItemStore{},
		Notifier:  &fakeNotifier{},
		Documents: &fakeDocGen{},
		DataSync:  &fakeDataSync{},
	})

	for _, typ := range []domain.StepType{
		domain.StepTypeStart, domain.StepTypeTask, domain.StepTypeDecision,
		domain.StepTypeParallel, domain.StepTypeMerge, domain.StepTypeEnd,
		domain.StepTypeDelay, domain.StepTypeNotification, domain.StepTypeAutomation,
	} {
		if !r.Has(typ) {
			t.Errorf("default registry is missing %s", typ)
		}
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(domain.StepType("subprocess"))
	if !errors.Is(err, ErrUnknownStepType) {
		t.Errorf("expected ErrUnknownStepType, got %v", err)
	}
}

// --- Task ---

func TestTaskBehavior_CreatesWorkItem(t *testing.T) {
	store := &fakeWorkItemStore{}
	b := NewTaskBehavior(store)
	exec := stepsExecution()

	step := &domain.Step{
		ID:       "review",
		Type:     domain.StepTypeTask,
		Name:     "Review documents",
		Assignee: "accountant",
		Timeout:  &domain.StepTimeout{Duration: 2, Unit: "hours", Action: "escalate"},
	}

	resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.items) != 1 {
		t.Fatalf("expected 1 work item, got %d", len(store.items))
	}
	item := store.items[0]
	if item.AssignedTo != "accountant" {
		t.Errorf("expected assignee from step, got %q", item.AssignedTo)
	}
	if item.Title != "Review documents" {
		t.Errorf("expected step name as title, got %q", item.Title)
	}
	if item.DueAt == nil {
		t.Fatal("timeout should produce a due date")
	}
	if got := item.DueAt.Sub(item.CreatedAt); got != 2*time.Hour {
		t.Errorf("expected due in 2h, got %v", got)
	}
	if item.TimeoutAction != "escalate" {
		t.Errorf("expected timeout action, got %q", item.TimeoutAction)
	}
	if resp.Outputs["work_item_id"] != item.ID.String() {
		t.Error("outputs should carry the work item id")
	}
}

func TestTaskBehavior_ResumeReusesWorkItem(t *testing.T) {
	store := &fakeWorkItemStore{}
	b := NewTaskBehavior(store)
	exec := stepsExecution()
	step := &domain.Step{ID: "review", Type: domain.StepTypeTask, Name: "Review"}

	first, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Повторная диспетчеризация после resume
	second, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.items) != 1 {
		t.Fatalf("resume must not duplicate work items, got %d", len(store.items))
	}
	if first.Outputs["work_item_id"] != second.Outputs["work_item_id"] {
		t.Error("both dispatches should reference the same work item")
	}
}

// --- Decision ---

func TestDecisionBehavior_FirstTrueWins(t *testing.T) {
	b := NewDecisionBehavior()
	exec := stepsExecution()

	step := &domain.Step{
		ID:   "route",
		Type: domain.StepTypeDecision,
		Conditions: []domain.Condition{
			{Name: "high_value", Field: "variables.amount", Operator: "greater_than", Value: 10000},
			{Name: "standard", Field: "variables.amount", Operator: "greater_than", Value: 1000},
			{Name: "also_true", Field: "variables.amount", Operator: "exists"},
		},
	}

	resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs[OutputSelectedPath] != "standard" {
		t.Errorf("expected first true condition to win, got %v", resp.Outputs[OutputSelectedPath])
	}
}

func TestDecisionBehavior_DefaultPath(t *testing.T) {
	b := NewDecisionBehavior()
	exec := stepsExecution()

	step := &domain.Step{
		ID:   "route",
		Type: domain.StepTypeDecision,
		Conditions: []domain.Condition{
			{Name: "high_value", Field: "variables.amount", Operator: "greater_than", Value: 10000},
		},
	}

	resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs[OutputSelectedPath] != DefaultPath {
		t.Errorf("expected default path, got %v", resp.Outputs[OutputSelectedPath])
	}
}

// --- Delay ---

func TestDelayBehavior_Waits(t *testing.T) {
	b := NewDelayBehavior()
	step := &domain.Step{
		ID:            "cool_off",
		Type:          domain.StepTypeDelay,
		Configuration: map[string]any{"delay": 1, "unit": "seconds"},
	}

	start := time.Now()
	resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: stepsExecution()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("delay returned too early: %v", elapsed)
	}
	if resp.Outputs["delay_ms"] != int64(1000) {
		t.Errorf("expected delay_ms=1000, got %v", resp.Outputs["delay_ms"])
	}
}

func TestDelayBehavior_CancelledContext(t *testing.T) {
	b := NewDelayBehavior()
	step := &domain.Step{
		ID:            "cool_off",
		Type:          domain.StepTypeDelay,
		Configuration: map[string]any{"delay": 1, "unit": "hours"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Execute(ctx, &Request{Step: step, Execution: stepsExecution()})
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestDelayBehavior_InvalidConfig(t *testing.T) {
	b := NewDelayBehavior()

	tests := []map[string]any{
		nil,
		{"unit": "minutes"},
		{"delay": 5, "unit": "fortnights"},
	}
	for _, config := range tests {
		step := &domain.Step{ID: "d", Type: domain.StepTypeDelay, Configuration: config}
		if _, err := b.Execute(context.Background(), &Request{Step: step, Execution: stepsExecution()}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("config %v: expected ErrInvalidConfig, got %v", config, err)
		}
	}
}

// --- Notification ---

func TestNotificationBehavior_AssigneeFallback(t *testing.T) {
	n := &fakeNotifier{}
	b := NewNotificationBehavior(n)
	exec := stepsExecution()

	step := &domain.Step{
		ID:            "notify",
		Type:          domain.StepTypeNotification,
		Assignee:      "manager",
		Configuration: map[string]any{"message": "ready"},
	}

	resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(n.recipients) != 1 || n.recipients[0] != "manager" {
		t.Errorf("expected fallback to assignee, got %v", n.recipients)
	}
	if resp.Outputs["delivered"] != true {
		t.Error("expected delivered=true")
	}
}

func TestNotificationBehavior_NoRecipients(t *testing.T) {
	b := NewNotificationBehavior(&fakeNotifier{})
	step := &domain.Step{ID: "notify", Type: domain.StepTypeNotification}

	_, err := b.Execute(context.Background(), &Request{Step: step, Execution: stepsExecution()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// --- Automation ---

func TestAutomationBehavior_Dispatch(t *testing.T) {
	n := &fakeNotifier{}
	d := &fakeDocGen{}
	b := NewAutomationBehavior(n, d, &fakeDataSync{})
	exec := stepsExecution()

	tests := []struct {
		name      string
		config    map[string]any
		outputKey string
		want      any
	}{
		{
			"email",
			map[string]any{"automationType": AutomationEmail, "recipients": []any{"ops"}},
			"delivered", true,
		},
		{
			"document",
			map[string]any{"automationType": AutomationDocument, "documentTemplate": "engagement-letter"},
			"document_id", "doc-123",
		},
		{
			"data sync",
			map[string]any{"automationType": AutomationDataSync},
			"records_synced", 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &domain.Step{ID: "auto", Type: domain.StepTypeAutomation, Configuration: tt.config}
			resp, err := b.Execute(context.Background(), &Request{Step: step, Execution: exec})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Outputs[tt.outputKey] != tt.want {
				t.Errorf("expected %s=%v, got %v", tt.outputKey, tt.want, resp.Outputs[tt.outputKey])
			}
		})
	}

	if d.templateRef != "engagement-letter" {
		t.Errorf("document generator received %q", d.templateRef)
	}
}

func TestAutomationBehavior_UnknownType(t *testing.T) {
	b := NewAutomationBehavior(&fakeNotifier{}, &fakeDocGen{}, &fakeDataSync{})
	step := &domain.Step{
		ID:            "auto",
		Type:          domain.StepTypeAutomation,
		Configuration: map[string]any{"automationType": "teleport"},
	}

	_, err := b.Execute(context.Background(), &Request{Step: step, Execution: stepsExecution()})
	if !errors.Is(err, ErrUnknownAutomationType) {
		t.Errorf("expected ErrUnknownAutomationType, got %v", err)
	}
}

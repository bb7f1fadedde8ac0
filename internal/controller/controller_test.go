package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/repo"
	"github.com/savrin/operato/internal/steps"
)

// --- In-memory stores ---

type memTemplates struct {
	mu    sync.Mutex
	items []domain.Template
}

func (m *memTemplates) add(tpl domain.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, tpl)
}

func (m *memTemplates) FindVersion(_ context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].Version == version {
			cp := m.items[i]
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memTemplates) FindLatest(_ context.Context, id uuid.UUID) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Template
	for i := range m.items {
		if m.items[i].ID == id && (latest == nil || m.items[i].Version > latest.Version) {
			latest = &m.items[i]
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type memExecutions struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Execution
}

func newMemExecutions() *memExecutions {
	return &memExecutions{items: make(map[uuid.UUID]domain.Execution)}
}

func (m *memExecutions) Create(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[exec.ID] = *exec
	return nil
}

func (m *memExecutions) Update(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[exec.ID]; !ok {
		return repo.ErrNotFound
	}
	m.items[exec.ID] = *exec
	return nil
}

func (m *memExecutions) FindByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &exec, nil
}

func (m *memExecutions) ListPending(_ context.Context, limit int) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, exec := range m.items {
		if exec.Status == domain.ExecutionStatusPending {
			out = append(out, exec)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memStepRecs struct {
	mu    sync.Mutex
	items []domain.StepExecution
}

func (m *memStepRecs) Create(_ context.Context, rec *domain.StepExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *rec)
	return nil
}

func (m *memStepRecs) Update(_ context.Context, rec *domain.StepExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == rec.ID {
			m.items[i] = *rec
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memStepRecs) ListByExecution(_ context.Context, executionID uuid.UUID) ([]domain.StepExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StepExecution
	for _, rec := range m.items {
		if rec.ExecutionID == executionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStepRecs) byStep(stepID string) []domain.StepExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StepExecution
	for _, rec := range m.items {
		if rec.StepID == stepID {
			out = append(out, rec)
		}
	}
	return out
}

// --- Collaborator fakes ---

type memWorkItems struct {
	mu    sync.Mutex
	items []domain.WorkItem
}

func (m *memWorkItems) Create(_ context.Context, item *domain.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *item)
	return nil
}

func (m *memWorkItems) FindByStep(_ context.Context, executionID uuid.UUID, stepID string) (*domain.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ExecutionID == executionID && m.items[i].StepID == stepID {
			cp := m.items[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memWorkItems) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type fakeNotifier struct{}

func (fakeNotifier) Send(_ context.Context, _ []string, _ map[string]any) (bool, error) {
	return true, nil
}

type fakeDocGen struct{}

func (fakeDocGen) Generate(_ context.Context, _ string, _ map[string]any) (string, error) {
	return "doc-1", nil
}

type fakeDataSync struct{}

func (fakeDataSync) Sync(_ context.Context, _ map[string]any) (int, error) {
	return 1, nil
}

// scriptBehavior позволяет тестам управлять исходом выполнения шага.
type scriptBehavior struct {
	typ domain.StepType
	fn  func(ctx context.Context, req *steps.Request) (*steps.Response, error)
}

func (s *scriptBehavior) Type() domain.StepType { return s.typ }

func (s *scriptBehavior) Execute(ctx context.Context, req *steps.Request) (*steps.Response, error) {
	return s.fn(ctx, req)
}

// --- Test harness ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	ctrl      *Controller
	templates *memTemplates
	execs     *memExecutions
	recs      *memStepRecs
	events    <-chan domain.WorkflowEvent
}

func newEnv(t *testing.T, tpl *domain.Template, registry *steps.Registry) *env {
	t.Helper()

	templates := &memTemplates{}
	if tpl != nil {
		templates.add(*tpl)
	}
	execs := newMemExecutions()
	recs := &memStepRecs{}

	ctrl := New(Config{
		Templates:      templates,
		Executions:     execs,
		StepExecutions: recs,
		Registry:       registry,
		Logger:         testLogger(),
	})

	ch, unsub := ctrl.Bus().Subscribe()
	t.Cleanup(unsub)

	return &env{
		ctrl:      ctrl,
		templates: templates,
		execs:     execs,
		recs:      recs,
		events:    ch,
	}
}

// scriptedRegistry — реестр со структурными шагами и управляемым task.
func scriptedRegistry(task *scriptBehavior) *steps.Registry {
	r := steps.NewRegistry()
	r.Register(steps.NewStartBehavior())
	r.Register(steps.NewEndBehavior())
	r.Register(steps.NewParallelBehavior())
	r.Register(steps.NewMergeBehavior())
	if task != nil {
		r.Register(task)
	}
	return r
}

// waitSettled ждёт, пока execution достигнет статуса и горутина
// продвижения завершится.
func waitSettled(t *testing.T, e *env, id uuid.UUID, want domain.ExecutionStatus) *domain.Execution {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := e.execs.FindByID(context.Background(), id)
		if err == nil && exec.Status == want && e.ctrl.ActiveCount() == 0 {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	exec, _ := e.execs.FindByID(context.Background(), id)
	t.Fatalf("execution did not settle at %s, current: %+v", want, exec)
	return nil
}

// collectUntil читает события до первого из стоп-типов включительно.
func collectUntil(t *testing.T, ch <-chan domain.WorkflowEvent, stop ...domain.EventType) []domain.WorkflowEvent {
	t.Helper()

	stopSet := make(map[domain.EventType]bool, len(stop))
	for _, s := range stop {
		stopSet[s] = true
	}

	var got []domain.WorkflowEvent
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			got = append(got, ev)
			if stopSet[ev.Type] {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v, collected: %v", stop, eventTypes(got))
		}
	}
}

func eventTypes(events []domain.WorkflowEvent) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func linearTemplate() *domain.Template {
	return &domain.Template{
		ID:      uuid.New(),
		Name:    "linear",
		Version: 1,
		Steps: []domain.Step{
			{ID: "start", Type: domain.StepTypeStart, Name: "Start"},
			{ID: "review", Type: domain.StepTypeTask, Name: "Review", Assignee: "alice"},
			{ID: "end", Type: domain.StepTypeEnd, Name: "End"},
		},
		Connections: []domain.Connection{
			{SourceStepID: "start", TargetStepID: "review"},
			{SourceStepID: "review", TargetStepID: "end"},
		},
		CreatedAt: time.Now(),
	}
}

// --- Lifecycle scenarios ---

func TestStartExecution_LinearFlow(t *testing.T) {
	tpl := linearTemplate()
	workItems := &memWorkItems{}
	registry := steps.DefaultRegistry(steps.Collaborators{
		WorkItems: workItems,
		Notifier:  fakeNotifier{},
		Documents: fakeDocGen{},
		DataSync:  fakeDataSync{},
	})
	e := newEnv(t, tpl, registry)

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{
		TemplateID: tpl.ID,
		Context:    domain.ExecutionContext{OrganizationID: uuid.New()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)
	if final.Progress != 100 {
		t.Errorf("expected progress 100, got %d", final.Progress)
	}
	if final.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}

	// start/end — структурные: их переходы не видны как step-события
	got := collectUntil(t, e.events, domain.EventWorkflowCompleted)
	want := []domain.EventType{
		domain.EventWorkflowStarted,
		domain.EventStepStarted,
		domain.EventStepCompleted,
		domain.EventWorkflowCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, eventTypes(got))
	}
	for i, ev := range got {
		if ev.Type != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], ev.Type)
		}
		if ev.ExecutionID != exec.ID {
			t.Errorf("event %d: wrong execution ID", i)
		}
	}
	if got[1].StepID != "review" || got[2].StepID != "review" {
		t.Error("step events should reference the task step")
	}

	// Прогресс в событиях монотонный и меньше 100 до завершения
	prev := 0
	for _, ev := range got[:len(got)-1] {
		if p, ok := ev.Payload["progress"].(int); ok {
			if p < prev {
				t.Errorf("progress went backwards: %d after %d", p, prev)
			}
			if p >= 100 {
				t.Errorf("progress %d before completion", p)
			}
			prev = p
		}
	}

	// task-шаг создал рабочее задание
	if workItems.count() != 1 {
		t.Errorf("expected 1 work item, got %d", workItems.count())
	}

	recs, _ := e.recs.ListByExecution(context.Background(), exec.ID)
	if len(recs) != 3 {
		t.Fatalf("expected 3 step records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Status != domain.StepStatusCompleted {
			t.Errorf("step %s: expected completed, got %s", rec.StepID, rec.Status)
		}
	}
}

func TestStartExecution_TemplateNotFound(t *testing.T) {
	e := newEnv(t, nil, scriptedRegistry(nil))

	_, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: uuid.New()})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestStartExecution_MissingRequiredVariable(t *testing.T) {
	tpl := linearTemplate()
	tpl.Variables = []domain.Variable{
		{Name: "amount", Type: "number", Required: true},
	}
	e := newEnv(t, tpl, scriptedRegistry(nil))

	_, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err == nil {
		t.Fatal("expected error for missing required variable")
	}
}

func TestDecision_RoutesSelectedPath(t *testing.T) {
	tpl := &domain.Template{
		ID:      uuid.New(),
		Name:    "approval",
		Version: 1,
		Steps: []domain.Step{
			{ID: "start", Type: domain.StepTypeStart},
			{
				ID:   "route",
				Type: domain.StepTypeDecision,
				Conditions: []domain.Condition{
					{Name: "high", Field: "variables.amount", Operator: "greater_than", Value: 1000},
				},
			},
			{ID: "senior_review", Type: domain.StepTypeTask, Assignee: "senior"},
			{ID: "auto_approve", Type: domain.StepTypeTask, Assignee: "auto"},
			{ID: "end", Type: domain.StepTypeEnd},
		},
		Connections: []domain.Connection{
			{SourceStepID: "start", TargetStepID: "route"},
			{SourceStepID: "route", TargetStepID: "senior_review", Label: "high"},
			{SourceStepID: "route", TargetStepID: "auto_approve"}, // пустая метка = default
			{SourceStepID: "senior_review", TargetStepID: "end"},
			{SourceStepID: "auto_approve", TargetStepID: "end"},
		},
	}

	workItems := &memWorkItems{}
	registry := steps.DefaultRegistry(steps.Collaborators{
		WorkItems: workItems,
		Notifier:  fakeNotifier{},
		Documents: fakeDocGen{},
		DataSync:  fakeDataSync{},
	})
	e := newEnv(t, tpl, registry)

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{
		TemplateID: tpl.ID,
		Variables:  map[string]any{"amount": 5000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	if len(e.recs.byStep("senior_review")) != 1 {
		t.Error("senior_review should have been dispatched")
	}
	if len(e.recs.byStep("auto_approve")) != 0 {
		t.Error("auto_approve should not have been dispatched")
	}
}

func parallelTemplate() *domain.Template {
	return &domain.Template{
		ID:      uuid.New(),
		Name:    "parallel",
		Version: 1,
		Steps: []domain.Step{
			{ID: "start", Type: domain.StepTypeStart},
			{ID: "split", Type: domain.StepTypeParallel},
			{ID: "branch_a", Type: domain.StepTypeTask, Assignee: "a"},
			{ID: "branch_b", Type: domain.StepTypeTask, Assignee: "b"},
			{ID: "join", Type: domain.StepTypeMerge, Dependencies: []string{"branch_a", "branch_b"}},
			{ID: "end", Type: domain.StepTypeEnd},
		},
		Connections: []domain.Connection{
			{SourceStepID: "start", TargetStepID: "split"},
			{SourceStepID: "split", TargetStepID: "branch_a"},
			{SourceStepID: "split", TargetStepID: "branch_b"},
			{SourceStepID: "branch_a", TargetStepID: "join"},
			{SourceStepID: "branch_b", TargetStepID: "join"},
			{SourceStepID: "join", TargetStepID: "end"},
		},
	}
}

func TestParallel_FanOutFanIn(t *testing.T) {
	tpl := parallelTemplate()

	workItems := &memWorkItems{}
	registry := steps.DefaultRegistry(steps.Collaborators{
		WorkItems: workItems,
		Notifier:  fakeNotifier{},
		Documents: fakeDocGen{},
		DataSync:  fakeDataSync{},
	})
	e := newEnv(t, tpl, registry)

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	recs, _ := e.recs.ListByExecution(context.Background(), exec.ID)
	if len(recs) != 6 {
		t.Fatalf("expected 6 step records, got %d", len(recs))
	}

	// merge диспетчеризуется один раз — после завершения обеих веток
	if len(e.recs.byStep("join")) != 1 {
		t.Errorf("expected 1 join record, got %d", len(e.recs.byStep("join")))
	}
	if workItems.count() != 2 {
		t.Errorf("expected 2 work items, got %d", workItems.count())
	}
}

// Обе ветки ставят merge-цель в очередь; дубль не должен повторно
// выполнять behavior и порождать вторую пару step-событий.
func TestParallel_MergeExecutesOnce(t *testing.T) {
	tpl := parallelTemplate()

	var mergeRuns atomic.Int32
	registry := steps.NewRegistry()
	registry.Register(steps.NewStartBehavior())
	registry.Register(steps.NewEndBehavior())
	registry.Register(steps.NewParallelBehavior())
	registry.Register(&scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			return &steps.Response{}, nil
		},
	})
	registry.Register(&scriptBehavior{
		typ: domain.StepTypeMerge,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			mergeRuns.Add(1)
			return &steps.Response{}, nil
		},
	})
	e := newEnv(t, tpl, registry)

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	if got := mergeRuns.Load(); got != 1 {
		t.Errorf("expected merge behavior to execute once, got %d", got)
	}

	got := collectUntil(t, e.events, domain.EventWorkflowCompleted)
	joinStarted, joinCompleted := 0, 0
	for _, ev := range got {
		if ev.StepID != "join" {
			continue
		}
		switch ev.Type {
		case domain.EventStepStarted:
			joinStarted++
		case domain.EventStepCompleted:
			joinCompleted++
		}
	}
	if joinStarted != 1 || joinCompleted != 1 {
		t.Errorf("expected one step_started/step_completed pair for join, got %d/%d", joinStarted, joinCompleted)
	}
}

// --- Failure policy scenarios ---

func TestRetry_RecoversAfterFailures(t *testing.T) {
	tpl := linearTemplate()
	tpl.Settings.Retry = domain.RetrySettings{
		Enabled:        true,
		MaxRetries:     2,
		Backoff:        "fixed",
		InitialDelayMs: 1,
		MaxDelayMs:     2,
	}

	var attempts atomic.Int32
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			if attempts.Add(1) <= 2 {
				return nil, errors.New("transient failure")
			}
			return &steps.Response{Outputs: map[string]any{"done": true}}, nil
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}

	got := collectUntil(t, e.events, domain.EventWorkflowCompleted)
	failed := 0
	for _, ev := range got {
		if ev.Type == domain.EventStepFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 step_failed events, got %d", failed)
	}
}

func TestRetry_ExhaustedFailsExecution(t *testing.T) {
	tpl := linearTemplate()
	tpl.Settings.Retry = domain.RetrySettings{
		Enabled:        true,
		MaxRetries:     1,
		InitialDelayMs: 1,
	}

	var attempts atomic.Int32
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			attempts.Add(1)
			return nil, errors.New("persistent failure")
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final := waitSettled(t, e, exec.ID, domain.ExecutionStatusFailed)

	// Упавший шаг повторяется ровно MaxRetries раз
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if final.Error == "" {
		t.Error("execution error should be set")
	}

	got := collectUntil(t, e.events, domain.EventWorkflowFailed)
	failed := 0
	for _, ev := range got {
		if ev.Type == domain.EventStepFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 step_failed events, got %d", failed)
	}

	recs := e.recs.byStep("review")
	if len(recs) != 1 || recs[0].Status != domain.StepStatusFailed {
		t.Error("step record should be failed")
	}
}

// Выключенный retry побеждает MaxRetries: одна попытка, одно
// step_failed, одно workflow_failed.
func TestFailure_RetryDisabled(t *testing.T) {
	tpl := linearTemplate()
	tpl.Settings.Retry = domain.RetrySettings{
		Enabled:    false,
		MaxRetries: 3,
	}

	var attempts atomic.Int32
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			attempts.Add(1)
			return nil, errors.New("broken step")
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final := waitSettled(t, e, exec.ID, domain.ExecutionStatusFailed)

	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
	if final.Error == "" {
		t.Error("execution error should be set")
	}

	got := collectUntil(t, e.events, domain.EventWorkflowFailed)
	stepFailed, workflowFailed := 0, 0
	for _, ev := range got {
		switch ev.Type {
		case domain.EventStepFailed:
			stepFailed++
		case domain.EventWorkflowFailed:
			workflowFailed++
		}
	}
	if stepFailed != 1 {
		t.Errorf("expected exactly 1 step_failed event, got %d", stepFailed)
	}
	if workflowFailed != 1 {
		t.Errorf("expected exactly 1 workflow_failed event, got %d", workflowFailed)
	}

	recs := e.recs.byStep("review")
	if len(recs) != 1 || recs[0].Status != domain.StepStatusFailed {
		t.Error("step record should be failed")
	}
	if len(recs) == 1 && recs[0].RetryCount != 0 {
		t.Errorf("expected retry count 0, got %d", recs[0].RetryCount)
	}
}

func TestEscalation_ReassignsStep(t *testing.T) {
	tpl := linearTemplate()
	tpl.Settings.EscalationLevels = []domain.EscalationLevel{
		{Level: 1, Assignee: "manager"},
	}

	var attempts atomic.Int32
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("needs escalation")
			}
			return &steps.Response{}, nil
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	got := collectUntil(t, e.events, domain.EventWorkflowCompleted)
	escalated := false
	for _, ev := range got {
		if ev.Type == domain.EventStepEscalated {
			escalated = true
			if ev.Payload["assignee"] != "manager" {
				t.Errorf("expected escalation to manager, got %v", ev.Payload["assignee"])
			}
		}
	}
	if !escalated {
		t.Error("expected step_escalated event")
	}

	recs := e.recs.byStep("review")
	if len(recs) != 1 {
		t.Fatalf("expected 1 step record, got %d", len(recs))
	}
	if recs[0].AssignedTo != "manager" {
		t.Errorf("expected step reassigned to manager, got %s", recs[0].AssignedTo)
	}
	if recs[0].EscalationLevel != 1 {
		t.Errorf("expected escalation level 1, got %d", recs[0].EscalationLevel)
	}
}

// --- Pause / resume / cancel ---

func TestPauseResume_ContinuesFromCompletedStep(t *testing.T) {
	tpl := linearTemplate()

	var invocations atomic.Int32
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(ctx context.Context, _ *steps.Request) (*steps.Response, error) {
			invocations.Add(1)
			entered <- struct{}{}
			select {
			case <-release:
				return &steps.Response{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-entered
	if err := e.ctrl.Pause(context.Background(), exec.ID, "awaiting documents"); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	close(release)

	paused := waitSettled(t, e, exec.ID, domain.ExecutionStatusPaused)
	if paused.PauseReason != "awaiting documents" {
		t.Errorf("expected pause reason, got %q", paused.PauseReason)
	}
	if paused.CurrentStepID != "review" {
		t.Errorf("expected current step review, got %q", paused.CurrentStepID)
	}

	if err := e.ctrl.Resume(context.Background(), exec.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	// Шаг успел завершиться до границы паузы: resume не выполняет
	// его behavior повторно, а продолжает с исходящих связей
	if got := invocations.Load(); got != 1 {
		t.Errorf("expected 1 behavior invocation, got %d", got)
	}
	// Запись шага переиспользуется, а не дублируется
	if recs := e.recs.byStep("review"); len(recs) != 1 {
		t.Errorf("expected 1 step record, got %d", len(recs))
	}

	got := collectUntil(t, e.events, domain.EventWorkflowCompleted)
	var sawPaused, sawResumed bool
	for _, ev := range got {
		switch ev.Type {
		case domain.EventWorkflowPaused:
			sawPaused = true
		case domain.EventWorkflowResumed:
			sawResumed = true
		}
	}
	if !sawPaused || !sawResumed {
		t.Errorf("expected paused and resumed events, got %v", eventTypes(got))
	}
}

func TestCancel_InterruptsInFlightStep(t *testing.T) {
	tpl := linearTemplate()

	entered := make(chan struct{}, 1)
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(ctx context.Context, _ *steps.Request) (*steps.Response, error) {
			entered <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	exec, err := e.ctrl.StartExecution(context.Background(), StartRequest{TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-entered
	if err := e.ctrl.Cancel(context.Background(), exec.ID, "no longer needed"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	final := waitSettled(t, e, exec.ID, domain.ExecutionStatusCancelled)
	if final.CancelReason != "no longer needed" {
		t.Errorf("expected cancel reason, got %q", final.CancelReason)
	}

	recs := e.recs.byStep("review")
	if len(recs) != 1 || recs[0].Status != domain.StepStatusCancelled {
		t.Error("in-flight step record should be cancelled")
	}

	// Повторная отмена из терминального статуса запрещена
	err = e.ctrl.Cancel(context.Background(), exec.ID, "again")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestPause_InvalidFromTerminal(t *testing.T) {
	e := newEnv(t, nil, scriptedRegistry(nil))

	exec := &domain.Execution{
		ID:     uuid.New(),
		Status: domain.ExecutionStatusCompleted,
	}
	_ = e.execs.Create(context.Background(), exec)

	err := e.ctrl.Pause(context.Background(), exec.ID, "too late")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestResume_InvalidFromRunning(t *testing.T) {
	tpl := linearTemplate()
	e := newEnv(t, tpl, scriptedRegistry(nil))

	exec := &domain.Execution{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Status:     domain.ExecutionStatusRunning,
	}
	_ = e.execs.Create(context.Background(), exec)

	err := e.ctrl.Resume(context.Background(), exec.ID)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestActivate_PicksUpPendingExecution(t *testing.T) {
	tpl := linearTemplate()
	workItems := &memWorkItems{}
	registry := steps.DefaultRegistry(steps.Collaborators{
		WorkItems: workItems,
		Notifier:  fakeNotifier{},
		Documents: fakeDocGen{},
		DataSync:  fakeDataSync{},
	})
	e := newEnv(t, tpl, registry)

	exec := &domain.Execution{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		TemplateVersion: 1,
		Status:          domain.ExecutionStatusPending,
		CreatedAt:       time.Now(),
	}
	_ = e.execs.Create(context.Background(), exec)

	if err := e.ctrl.Activate(context.Background(), exec.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)
}

// Running execution с незавершённым текущим шагом (оборванный
// движок) активируется заново: шаг перезапускается с нуля,
// существующая запись переиспользуется.
func TestActivate_ReplaysInterruptedStep(t *testing.T) {
	tpl := linearTemplate()

	var invocations atomic.Int32
	task := &scriptBehavior{
		typ: domain.StepTypeTask,
		fn: func(_ context.Context, _ *steps.Request) (*steps.Response, error) {
			invocations.Add(1)
			return &steps.Response{}, nil
		},
	}
	e := newEnv(t, tpl, scriptedRegistry(task))

	now := time.Now()
	exec := &domain.Execution{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		TemplateVersion: 1,
		Status:          domain.ExecutionStatusRunning,
		CurrentStepID:   "review",
		StartedAt:       &now,
		CreatedAt:       now,
	}
	_ = e.execs.Create(context.Background(), exec)
	_ = e.recs.Create(context.Background(), &domain.StepExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		StepID:      "review",
		Type:        domain.StepTypeTask,
		Status:      domain.StepStatusRunning,
		CreatedAt:   now,
	})

	if err := e.ctrl.Activate(context.Background(), exec.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	waitSettled(t, e, exec.ID, domain.ExecutionStatusCompleted)

	if got := invocations.Load(); got != 1 {
		t.Errorf("expected 1 behavior invocation, got %d", got)
	}
	if recs := e.recs.byStep("review"); len(recs) != 1 || recs[0].Status != domain.StepStatusCompleted {
		t.Error("interrupted step record should be reused and completed")
	}
}

func TestActivate_NotPending(t *testing.T) {
	tpl := linearTemplate()
	e := newEnv(t, tpl, scriptedRegistry(nil))

	exec := &domain.Execution{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Status:     domain.ExecutionStatusCompleted,
	}
	_ = e.execs.Create(context.Background(), exec)

	err := e.ctrl.Activate(context.Background(), exec.ID)
	if !errors.Is(err, ErrExecutionNotPending) {
		t.Errorf("expected ErrExecutionNotPending, got %v", err)
	}
}

// --- ExecState / Controller unit tests ---

func TestNewExecState(t *testing.T) {
	exec := &domain.Execution{ID: uuid.New()}
	tpl := &domain.Template{}

	st := NewExecState(exec, tpl)

	if st.Exec != exec {
		t.Error("Exec should be set")
	}
	if st.Template != tpl {
		t.Error("Template should be set")
	}
	if st.records == nil {
		t.Error("records map should be initialized")
	}
}

func TestExecState_Restore(t *testing.T) {
	exec := &domain.Execution{ID: uuid.New()}
	st := NewExecState(exec, &domain.Template{})

	st.Restore([]domain.StepExecution{
		{ID: uuid.New(), StepID: "a", Status: domain.StepStatusCompleted},
		{ID: uuid.New(), StepID: "b", Status: domain.StepStatusRunning},
	})

	if st.Record("a") == nil || st.Record("b") == nil {
		t.Fatal("records should be restored")
	}
	if st.CompletedSteps() != 1 {
		t.Errorf("expected 1 completed step, got %d", st.CompletedSteps())
	}

	lookup := st.Lookup()
	rec, ok := lookup("a")
	if !ok || rec.Status != domain.StepStatusCompleted {
		t.Error("lookup should find restored record")
	}
	if _, ok := lookup("missing"); ok {
		t.Error("lookup should not find unknown step")
	}
}

func TestExecState_Stats(t *testing.T) {
	exec := &domain.Execution{ID: uuid.New()}
	tpl := &domain.Template{
		Steps: []domain.Step{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	st := NewExecState(exec, tpl)

	st.SetRecord(&domain.StepExecution{ID: uuid.New(), StepID: "a", Status: domain.StepStatusCompleted})
	st.SetRecord(&domain.StepExecution{ID: uuid.New(), StepID: "b", Status: domain.StepStatusRunning})
	st.SetRecord(&domain.StepExecution{ID: uuid.New(), StepID: "c", Status: domain.StepStatusFailed})

	stats := st.Stats()
	if stats.TotalSteps != 3 {
		t.Errorf("expected 3 total steps, got %d", stats.TotalSteps)
	}
	if stats.CompletedSteps != 1 || stats.RunningSteps != 1 || stats.FailedSteps != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestNew_Defaults(t *testing.T) {
	ctrl := New(Config{Logger: testLogger()})

	if ctrl.active == nil {
		t.Error("active map should be initialized")
	}
	if ctrl.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, ctrl.pollInterval)
	}
	if ctrl.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", defaultBatchSize, ctrl.batchSize)
	}
	if ctrl.Bus() == nil {
		t.Error("bus should be created when not supplied")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	ctrl := New(Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		Logger:       testLogger(),
	})

	if ctrl.pollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", ctrl.pollInterval)
	}
	if ctrl.batchSize != 50 {
		t.Errorf("expected batch size 50, got %d", ctrl.batchSize)
	}
}

func TestController_ActiveTracking(t *testing.T) {
	ctrl := New(Config{Logger: testLogger()})

	execID := uuid.New()
	st := NewExecState(&domain.Execution{ID: execID}, &domain.Template{
		Steps: []domain.Step{{ID: "a"}},
	})

	if ctrl.ActiveCount() != 0 {
		t.Error("should have no active executions initially")
	}
	if ctrl.isActive(execID) {
		t.Error("execution should not be active initially")
	}

	if err := ctrl.addActive(st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.ActiveCount() != 1 || !ctrl.isActive(execID) {
		t.Error("execution should be active")
	}
	if ctrl.getActive(execID) != st {
		t.Error("getActive should return the state")
	}

	if err := ctrl.addActive(st); !errors.Is(err, ErrExecutionAlreadyActive) {
		t.Errorf("expected ErrExecutionAlreadyActive, got %v", err)
	}

	stats, ok := ctrl.ActiveStats(execID)
	if !ok {
		t.Fatal("should find stats for active execution")
	}
	if stats.TotalSteps != 1 {
		t.Errorf("expected 1 total step, got %d", stats.TotalSteps)
	}

	ctrl.removeActive(execID)
	if ctrl.ActiveCount() != 0 || ctrl.isActive(execID) {
		t.Error("execution should not be active after removal")
	}
	if _, ok := ctrl.ActiveStats(execID); ok {
		t.Error("should not find stats after removal")
	}
}

func TestDecideFailure_Order(t *testing.T) {
	tpl := &domain.Template{
		Settings: domain.Settings{
			Retry: domain.RetrySettings{Enabled: true, MaxRetries: 2},
			EscalationLevels: []domain.EscalationLevel{
				{Level: 1, Assignee: "manager"},
				{Level: 2, Assignee: "partner"},
			},
		},
	}

	rec := &domain.StepExecution{}
	if d := decideFailure(tpl, rec); d.Action != ActionRetry {
		t.Errorf("expected retry, got %s", d.Action)
	}

	rec.RetryCount = 2
	d := decideFailure(tpl, rec)
	if d.Action != ActionEscalate || d.Level != 1 || d.Assignee != "manager" {
		t.Errorf("expected escalate to level 1, got %+v", d)
	}

	rec.EscalationLevel = 1
	d = decideFailure(tpl, rec)
	if d.Action != ActionEscalate || d.Level != 2 {
		t.Errorf("expected escalate to level 2, got %+v", d)
	}

	rec.EscalationLevel = 2
	if d := decideFailure(tpl, rec); d.Action != ActionFail {
		t.Errorf("expected fail, got %s", d.Action)
	}
}

func TestBackoffDelay(t *testing.T) {
	fixed := domain.RetrySettings{Backoff: "fixed", InitialDelayMs: 100, MaxDelayMs: 1000}
	if d := backoffDelay(3, fixed); d != 100*time.Millisecond {
		t.Errorf("fixed: expected 100ms, got %v", d)
	}

	exp := domain.RetrySettings{Backoff: "exponential", InitialDelayMs: 100, MaxDelayMs: 1000}
	if d := backoffDelay(1, exp); d != 100*time.Millisecond {
		t.Errorf("exponential attempt 1: expected 100ms, got %v", d)
	}
	if d := backoffDelay(3, exp); d != 400*time.Millisecond {
		t.Errorf("exponential attempt 3: expected 400ms, got %v", d)
	}
	if d := backoffDelay(10, exp); d != time.Second {
		t.Errorf("exponential capped: expected 1s, got %v", d)
	}

	if d := backoffDelay(1, domain.RetrySettings{}); d != time.Second {
		t.Errorf("defaults: expected 1s, got %v", d)
	}
}

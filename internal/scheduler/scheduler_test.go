package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/repo"
)

// --- Cron tests ---

func TestCalculateNextDue_Cron(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	sched := &domain.TriggerSchedule{
		CronExpr: "0 9 * * *", // каждый день в 9:00
		Timezone: "UTC",
	}

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_CronAfterDue(t *testing.T) {
	from := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	sched := &domain.TriggerSchedule{
		CronExpr: "0 9 * * *",
		Timezone: "UTC",
	}

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 9:00 уже прошло — следующий запуск завтра
	want := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_Interval(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	sched := &domain.TriggerSchedule{
		IntervalSec: 3600,
		Timezone:    "UTC",
	}

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(time.Hour)) {
		t.Errorf("expected %v, got %v", from.Add(time.Hour), next)
	}
}

func TestCalculateNextDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	sched := &domain.TriggerSchedule{
		IntervalSec: 60,
		Timezone:    "Mars/Olympus",
	}

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(time.Minute)) {
		t.Errorf("expected %v, got %v", from.Add(time.Minute), next)
	}
}

func TestCalculateNextDue_NeitherCronNorInterval(t *testing.T) {
	sched := &domain.TriggerSchedule{Timezone: "UTC"}

	_, err := CalculateNextDue(sched, time.Now())
	if err == nil {
		t.Error("expected error for schedule without cron or interval")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("0 9 * * 1-5"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

// --- Tick tests ---

type fakeSchedules struct {
	mu    sync.Mutex
	items []domain.TriggerSchedule
}

func (f *fakeSchedules) ListDue(_ context.Context, limit int) ([]domain.TriggerSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []domain.TriggerSchedule
	for _, s := range f.items {
		if s.IsDue(now) {
			out = append(out, s)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSchedules) Update(_ context.Context, s *domain.TriggerSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == s.ID {
			f.items[i] = *s
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeTemplates struct {
	items map[uuid.UUID]domain.Template
}

func (f *fakeTemplates) FindLatest(_ context.Context, id uuid.UUID) (*domain.Template, error) {
	tpl, ok := f.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &tpl, nil
}

type fakeExecutions struct {
	mu    sync.Mutex
	items []domain.Execution
}

func (f *fakeExecutions) Create(_ context.Context, exec *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *exec)
	return nil
}

func (f *fakeExecutions) FindByScheduleKey(_ context.Context, key string) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].Context.Custom["schedule_key"] == key {
			cp := f.items[i]
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeExecutions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dueSchedule(templateID uuid.UUID) domain.TriggerSchedule {
	due := time.Now().Add(-time.Minute)
	return domain.TriggerSchedule{
		ID:          uuid.New(),
		TemplateID:  templateID,
		Name:        "nightly",
		IntervalSec: 3600,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &due,
		Variables:   map[string]any{"source": "schedule"},
	}
}

func TestTick_CreatesPendingExecution(t *testing.T) {
	tpl := domain.Template{
		ID:      uuid.New(),
		Name:    "report",
		Version: 3,
		Steps:   []domain.Step{{ID: "start", Type: domain.StepTypeStart}},
	}
	schedules := &fakeSchedules{items: []domain.TriggerSchedule{dueSchedule(tpl.ID)}}
	templates := &fakeTemplates{items: map[uuid.UUID]domain.Template{tpl.ID: tpl}}
	execs := &fakeExecutions{}

	s := New(Config{
		Schedules:  schedules,
		Templates:  templates,
		Executions: execs,
		Logger:     testLogger(),
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if execs.count() != 1 {
		t.Fatalf("expected 1 execution, got %d", execs.count())
	}
	exec := execs.items[0]
	if exec.Status != domain.ExecutionStatusPending {
		t.Errorf("expected pending, got %s", exec.Status)
	}
	if exec.TemplateVersion != 3 {
		t.Errorf("expected template version 3, got %d", exec.TemplateVersion)
	}
	if exec.Variables["source"] != "schedule" {
		t.Error("schedule variables should be seeded into execution")
	}

	// next_due_at сдвинут вперёд, расписание не due
	sched := schedules.items[0]
	if sched.IsDue(time.Now()) {
		t.Error("schedule should not be due after tick")
	}
	if sched.LastExecutionID == nil || *sched.LastExecutionID != exec.ID {
		t.Error("schedule should record created execution")
	}
}

func TestTick_IdempotentForSameDueTime(t *testing.T) {
	tpl := domain.Template{
		ID:      uuid.New(),
		Version: 1,
		Steps:   []domain.Step{{ID: "start", Type: domain.StepTypeStart}},
	}
	sched := dueSchedule(tpl.ID)
	schedules := &fakeSchedules{items: []domain.TriggerSchedule{sched}}
	templates := &fakeTemplates{items: map[uuid.UUID]domain.Template{tpl.ID: tpl}}
	execs := &fakeExecutions{}

	s := New(Config{
		Schedules:  schedules,
		Templates:  templates,
		Executions: execs,
		Logger:     testLogger(),
	})

	// Имитируем повтор тика для того же next_due_at: после первого
	// прохода откатываем расписание к исходному состоянию
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	schedules.mu.Lock()
	schedules.items[0] = sched
	schedules.mu.Unlock()
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if execs.count() != 1 {
		t.Errorf("expected 1 execution after duplicate tick, got %d", execs.count())
	}
}

func TestTick_SkipsMissingTemplate(t *testing.T) {
	schedules := &fakeSchedules{items: []domain.TriggerSchedule{dueSchedule(uuid.New())}}
	templates := &fakeTemplates{items: map[uuid.UUID]domain.Template{}}
	execs := &fakeExecutions{}

	s := New(Config{
		Schedules:  schedules,
		Templates:  templates,
		Executions: execs,
		Logger:     testLogger(),
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if execs.count() != 0 {
		t.Errorf("expected no executions, got %d", execs.count())
	}
}

func TestTick_NoDueSchedules(t *testing.T) {
	s := New(Config{
		Schedules:  &fakeSchedules{},
		Templates:  &fakeTemplates{},
		Executions: &fakeExecutions{},
		Logger:     testLogger(),
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
	"github.com/savrin/operato/internal/mq"
	"github.com/savrin/operato/internal/repo"
)

// ScheduleStore — доступ планировщика к расписаниям.
type ScheduleStore interface {
	ListDue(ctx context.Context, limit int) ([]domain.TriggerSchedule, error)
	Update(ctx context.Context, s *domain.TriggerSchedule) error
}

// TemplateStore — доступ планировщика к шаблонам.
type TemplateStore interface {
	FindLatest(ctx context.Context, id uuid.UUID) (*domain.Template, error)
}

// ExecutionStore — доступ планировщика к executions.
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	FindByScheduleKey(ctx context.Context, key string) (*domain.Execution, error)
}

// Scheduler создаёт executions по due-расписаниям.
type Scheduler struct {
	schedules  ScheduleStore
	templates  TemplateStore
	executions ExecutionStore
	publisher  *mq.Publisher
	logger     *slog.Logger
	batchSize  int
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules  ScheduleStore
	Templates  TemplateStore
	Executions ExecutionStore
	Publisher  *mq.Publisher // опционально
	Logger     *slog.Logger
	BatchSize  int // количество расписаний за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules:  cfg.Schedules,
		templates:  cfg.Templates,
		executions: cfg.Executions,
		publisher:  cfg.Publisher,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due-расписания (enabled=true, next_due_at <= now)
// 2. Для каждого создаёт pending execution
// 3. Обновляет next_due_at
// 4. Публикует execution.pending в RabbitMQ
//
// Ошибки одного расписания не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		execCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}

		processed++
		if execCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"executions_created", created,
	)

	return nil
}

// processSchedule обрабатывает одно расписание.
// Возвращает true, если execution был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.TriggerSchedule, now time.Time) (bool, error) {
	tpl, err := s.templates.FindLatest(ctx, sched.TemplateID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("template not found for schedule, skipping",
				"schedule_id", sched.ID,
				"template_id", sched.TemplateID,
			)
			return false, nil
		}
		return false, fmt.Errorf("get latest template: %w", err)
	}

	// Ключ идемпотентности "{schedule_id}_{next_due_at_unix}": для
	// одного расписания и конкретного времени создаётся ровно один
	// execution, даже если тик повторился после сбоя.
	schedKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	existing, err := s.executions.FindByScheduleKey(ctx, schedKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check schedule key: %w", err)
	}

	var execCreated bool
	var execID uuid.UUID

	if existing != nil {
		s.logger.Debug("execution already exists for schedule key",
			"schedule_id", sched.ID,
			"execution_id", existing.ID,
			"schedule_key", schedKey,
		)
		execID = existing.ID
	} else {
		vars, err := engine.SeedVariables(tpl, sched.Variables)
		if err != nil {
			return false, fmt.Errorf("seed variables: %w", err)
		}

		exec := &domain.Execution{
			ID:              uuid.New(),
			TemplateID:      tpl.ID,
			TemplateVersion: tpl.Version,
			Status:          domain.ExecutionStatusPending,
			Variables:       vars,
			Context: domain.ExecutionContext{
				OrganizationID: sched.OrganizationID,
				Custom: map[string]any{
					"schedule_id":  sched.ID.String(),
					"schedule_key": schedKey,
				},
			},
			CreatedAt: now,
		}

		if err := s.executions.Create(ctx, exec); err != nil {
			return false, fmt.Errorf("create execution: %w", err)
		}

		s.logger.Info("created execution from schedule",
			"execution_id", exec.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"template_id", tpl.ID,
			"template_version", tpl.Version,
		)

		execID = exec.ID
		execCreated = true
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving schedule as is",
			"schedule_id", sched.ID,
			"error", err,
		)
		return execCreated, nil
	}

	sched.RecordRun(execID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return execCreated, fmt.Errorf("update schedule: %w", err)
	}

	// Engine подхватит execution и через polling, если публикация
	// не удалась — событие лишь ускоряет подхват
	if s.publisher != nil && execCreated {
		if err := s.publisher.PublishExecutionPending(ctx, execID, tpl.ID); err != nil {
			s.logger.Warn("failed to publish execution.pending",
				"execution_id", execID,
				"error", err,
			)
		}
	}

	return execCreated, nil
}

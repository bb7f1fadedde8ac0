package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savrin/operato/internal/domain"
)

// ScheduleRepo — репозиторий для scheduled-триггеров.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Create создаёт расписание.
func (r *ScheduleRepo) Create(ctx context.Context, s *domain.TriggerSchedule) error {
	variablesJSON, err := json.Marshal(s.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		INSERT INTO trigger_schedules (id, template_id, organization_id, name,
		                               cron_expr, interval_sec, timezone, enabled,
		                               next_due_at, last_run_at, last_execution_id,
		                               variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.TemplateID,
		nullUUID(&s.OrganizationID),
		nullString(s.Name),
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastExecutionID,
		variablesJSON,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// Update обновляет расписание.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.TriggerSchedule) error {
	variablesJSON, err := json.Marshal(s.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		UPDATE trigger_schedules
		SET name = $2, cron_expr = $3, interval_sec = $4, timezone = $5,
		    enabled = $6, next_due_at = $7, last_run_at = $8,
		    last_execution_id = $9, variables = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		nullString(s.Name),
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastExecutionID,
		variablesJSON,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID возвращает расписание по ID.
func (r *ScheduleRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.TriggerSchedule, error) {
	query := scheduleSelect + ` WHERE id = $1`

	s, err := scanScheduleRow(r.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// List возвращает расписания шаблона (или все при nil).
func (r *ScheduleRepo) List(ctx context.Context, templateID *uuid.UUID) ([]domain.TriggerSchedule, error) {
	query := scheduleSelect + `
		WHERE ($1::uuid IS NULL OR template_id = $1)
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, nullUUID(templateID))
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ListDue возвращает активные расписания, срок которых наступил.
func (r *ScheduleRepo) ListDue(ctx context.Context, limit int) ([]domain.TriggerSchedule, error) {
	query := scheduleSelect + `
		WHERE enabled = TRUE AND next_due_at IS NOT NULL AND next_due_at <= NOW()
		ORDER BY next_due_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// SetEnabled включает или выключает расписание.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE trigger_schedules
		SET enabled = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("set schedule enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет расписание.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM trigger_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

const scheduleSelect = `
	SELECT id, template_id, organization_id, name, cron_expr, interval_sec,
	       timezone, enabled, next_due_at, last_run_at, last_execution_id,
	       variables, created_at, updated_at
	FROM trigger_schedules
`

func collectSchedules(rows pgx.Rows) ([]domain.TriggerSchedule, error) {
	var schedules []domain.TriggerSchedule
	for rows.Next() {
		s, err := scanScheduleRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func scanScheduleRow(scan func(dest ...any) error) (*domain.TriggerSchedule, error) {
	var s domain.TriggerSchedule
	var orgID *uuid.UUID
	var name, cronExpr *string
	var intervalSec *int
	var variablesJSON []byte

	err := scan(
		&s.ID,
		&s.TemplateID,
		&orgID,
		&name,
		&cronExpr,
		&intervalSec,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastExecutionID,
		&variablesJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &s.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}

	if orgID != nil {
		s.OrganizationID = *orgID
	}
	if name != nil {
		s.Name = *name
	}
	if cronExpr != nil {
		s.CronExpr = *cronExpr
	}
	if intervalSec != nil {
		s.IntervalSec = *intervalSec
	}

	return &s, nil
}

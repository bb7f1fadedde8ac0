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

// ExecutionRepo — репозиторий для работы с executions.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create создаёт новый execution.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	variablesJSON, err := json.Marshal(exec.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	contextJSON, err := json.Marshal(exec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO executions (id, template_id, template_version, status, current_step_id,
		                        progress, variables, context, assigned_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.TemplateID,
		exec.TemplateVersion,
		exec.Status,
		nullString(exec.CurrentStepID),
		exec.Progress,
		variablesJSON,
		contextJSON,
		nullString(exec.AssignedTo),
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// FindByID возвращает execution по ID.
func (r *ExecutionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := executionSelect + ` WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет execution.
func (r *ExecutionRepo) Update(ctx context.Context, exec *domain.Execution) error {
	variablesJSON, err := json.Marshal(exec.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2, current_step_id = $3, progress = $4, variables = $5,
		    assigned_to = $6, pause_reason = $7, cancel_reason = $8, error = $9,
		    started_at = $10, paused_at = $11, finished_at = $12
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.Status,
		nullString(exec.CurrentStepID),
		exec.Progress,
		variablesJSON,
		nullString(exec.AssignedTo),
		nullString(exec.PauseReason),
		nullString(exec.CancelReason),
		nullString(exec.Error),
		exec.StartedAt,
		exec.PausedAt,
		exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List возвращает список executions с фильтрацией.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	query := executionSelect + `
		WHERE ($1::uuid IS NULL OR template_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::uuid IS NULL OR context->>'organization_id' = $3::text)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.TemplateID),
		nullString(string(filter.Status)),
		nullUUID(filter.OrganizationID),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// FindByScheduleKey возвращает execution, созданный планировщиком
// с данным ключом идемпотентности.
func (r *ExecutionRepo) FindByScheduleKey(ctx context.Context, key string) (*domain.Execution, error) {
	query := executionSelect + ` WHERE context->'custom'->>'schedule_key' = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, key))
}

// ListPending возвращает executions в статусе pending (для polling).
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := executionSelect + `
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// --- Helpers ---

// ExecutionFilter — параметры фильтрации executions.
type ExecutionFilter struct {
	TemplateID     *uuid.UUID
	OrganizationID *uuid.UUID
	Status         domain.ExecutionStatus
	Limit          int
	Offset         int
}

const executionSelect = `
	SELECT id, template_id, template_version, status, current_step_id, progress,
	       variables, context, assigned_to, pause_reason, cancel_reason, error,
	       started_at, paused_at, finished_at, created_at
	FROM executions
`

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	exec, err := scanExecutionRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecutionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// scanExecutionRow сканирует строку через переданный Scan.
func scanExecutionRow(scan func(dest ...any) error) (*domain.Execution, error) {
	var exec domain.Execution
	var variablesJSON, contextJSON []byte
	var currentStepID, assignedTo, pauseReason, cancelReason, execError *string

	err := scan(
		&exec.ID,
		&exec.TemplateID,
		&exec.TemplateVersion,
		&exec.Status,
		&currentStepID,
		&exec.Progress,
		&variablesJSON,
		&contextJSON,
		&assignedTo,
		&pauseReason,
		&cancelReason,
		&execError,
		&exec.StartedAt,
		&exec.PausedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &exec.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	if contextJSON != nil {
		if err := json.Unmarshal(contextJSON, &exec.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}

	if currentStepID != nil {
		exec.CurrentStepID = *currentStepID
	}
	if assignedTo != nil {
		exec.AssignedTo = *assignedTo
	}
	if pauseReason != nil {
		exec.PauseReason = *pauseReason
	}
	if cancelReason != nil {
		exec.CancelReason = *cancelReason
	}
	if execError != nil {
		exec.Error = *execError
	}

	return &exec, nil
}

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

// StepExecutionRepo — репозиторий для записей шагов.
type StepExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewStepExecutionRepo создаёт новый StepExecutionRepo.
func NewStepExecutionRepo(pool *pgxpool.Pool) *StepExecutionRepo {
	return &StepExecutionRepo{pool: pool}
}

// Create создаёт запись шага.
func (r *StepExecutionRepo) Create(ctx context.Context, rec *domain.StepExecution) error {
	inputsJSON, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		INSERT INTO step_executions (id, execution_id, step_id, name, type, status,
		                             assigned_to, inputs, outputs, error_message,
		                             retry_count, escalation_level, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.ExecutionID,
		rec.StepID,
		nullString(rec.Name),
		rec.Type,
		rec.Status,
		nullString(rec.AssignedTo),
		inputsJSON,
		outputsJSON,
		nullString(rec.ErrorMessage),
		rec.RetryCount,
		rec.EscalationLevel,
		rec.StartedAt,
		rec.FinishedAt,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step execution: %w", err)
	}
	return nil
}

// Update обновляет запись шага.
func (r *StepExecutionRepo) Update(ctx context.Context, rec *domain.StepExecution) error {
	inputsJSON, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		UPDATE step_executions
		SET status = $2, assigned_to = $3, inputs = $4, outputs = $5,
		    error_message = $6, retry_count = $7, escalation_level = $8,
		    started_at = $9, finished_at = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Status,
		nullString(rec.AssignedTo),
		inputsJSON,
		outputsJSON,
		nullString(rec.ErrorMessage),
		rec.RetryCount,
		rec.EscalationLevel,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update step execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID возвращает запись шага по ID.
func (r *StepExecutionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.StepExecution, error) {
	query := stepExecutionSelect + ` WHERE id = $1`

	rec, err := scanStepExecutionRow(r.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListByExecution возвращает записи шагов execution в порядке создания.
func (r *StepExecutionRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.StepExecution, error) {
	query := stepExecutionSelect + `
		WHERE execution_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list step executions: %w", err)
	}
	defer rows.Close()

	var recs []domain.StepExecution
	for rows.Next() {
		rec, err := scanStepExecutionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// --- Helpers ---

const stepExecutionSelect = `
	SELECT id, execution_id, step_id, name, type, status, assigned_to,
	       inputs, outputs, error_message, retry_count, escalation_level,
	       started_at, finished_at, created_at
	FROM step_executions
`

func scanStepExecutionRow(scan func(dest ...any) error) (*domain.StepExecution, error) {
	var rec domain.StepExecution
	var inputsJSON, outputsJSON []byte
	var name, assignedTo, errorMessage *string

	err := scan(
		&rec.ID,
		&rec.ExecutionID,
		&rec.StepID,
		&name,
		&rec.Type,
		&rec.Status,
		&assignedTo,
		&inputsJSON,
		&outputsJSON,
		&errorMessage,
		&rec.RetryCount,
		&rec.EscalationLevel,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan step execution: %w", err)
	}

	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &rec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &rec.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}

	if name != nil {
		rec.Name = *name
	}
	if assignedTo != nil {
		rec.AssignedTo = *assignedTo
	}
	if errorMessage != nil {
		rec.ErrorMessage = *errorMessage
	}

	return &rec, nil
}

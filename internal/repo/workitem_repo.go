package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savrin/operato/internal/domain"
)

// WorkItemRepo — репозиторий для рабочих заданий.
type WorkItemRepo struct {
	pool *pgxpool.Pool
}

// NewWorkItemRepo создаёт новый WorkItemRepo.
func NewWorkItemRepo(pool *pgxpool.Pool) *WorkItemRepo {
	return &WorkItemRepo{pool: pool}
}

// Create создаёт рабочее задание.
// Пара (execution_id, step_id) уникальна — дубликат возвращает ErrAlreadyExists.
func (r *WorkItemRepo) Create(ctx context.Context, item *domain.WorkItem) error {
	query := `
		INSERT INTO work_items (id, execution_id, step_id, organization_id, title,
		                        description, assigned_to, status, due_at,
		                        timeout_action, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (execution_id, step_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		item.ID,
		item.ExecutionID,
		item.StepID,
		nullUUID(&item.OrganizationID),
		item.Title,
		nullString(item.Description),
		nullString(item.AssignedTo),
		item.Status,
		item.DueAt,
		nullString(item.TimeoutAction),
		item.CompletedAt,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert work item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Update обновляет рабочее задание.
func (r *WorkItemRepo) Update(ctx context.Context, item *domain.WorkItem) error {
	query := `
		UPDATE work_items
		SET title = $2, description = $3, assigned_to = $4, status = $5,
		    due_at = $6, timeout_action = $7, completed_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		item.ID,
		item.Title,
		nullString(item.Description),
		nullString(item.AssignedTo),
		item.Status,
		item.DueAt,
		nullString(item.TimeoutAction),
		item.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID возвращает задание по ID.
func (r *WorkItemRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error) {
	query := workItemSelect + ` WHERE id = $1`

	item, err := scanWorkItemRow(r.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// FindByStep возвращает задание для пары (execution, step).
// Возвращает (nil, nil), если задания нет — так task-шаг отличает
// первый запуск от повторной диспетчеризации после resume.
func (r *WorkItemRepo) FindByStep(ctx context.Context, executionID uuid.UUID, stepID string) (*domain.WorkItem, error) {
	query := workItemSelect + ` WHERE execution_id = $1 AND step_id = $2`

	item, err := scanWorkItemRow(r.pool.QueryRow(ctx, query, executionID, stepID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ListByExecution возвращает задания execution.
func (r *WorkItemRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.WorkItem, error) {
	query := workItemSelect + `
		WHERE execution_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	return collectWorkItems(rows)
}

// ListByAssignee возвращает незавершённые задания исполнителя.
func (r *WorkItemRepo) ListByAssignee(ctx context.Context, assignee string, limit int) ([]domain.WorkItem, error) {
	query := workItemSelect + `
		WHERE assigned_to = $1 AND status NOT IN ('done', 'cancelled')
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, assignee, limit)
	if err != nil {
		return nil, fmt.Errorf("list work items by assignee: %w", err)
	}
	defer rows.Close()

	return collectWorkItems(rows)
}

// ListOverdue возвращает просроченные незавершённые задания.
func (r *WorkItemRepo) ListOverdue(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	query := workItemSelect + `
		WHERE due_at IS NOT NULL AND due_at < NOW()
		  AND status NOT IN ('done', 'cancelled')
		ORDER BY due_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue work items: %w", err)
	}
	defer rows.Close()

	return collectWorkItems(rows)
}

// --- Helpers ---

const workItemSelect = `
	SELECT id, execution_id, step_id, organization_id, title, description,
	       assigned_to, status, due_at, timeout_action, completed_at, created_at
	FROM work_items
`

func collectWorkItems(rows pgx.Rows) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItemRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanWorkItemRow(scan func(dest ...any) error) (*domain.WorkItem, error) {
	var item domain.WorkItem
	var orgID *uuid.UUID
	var description, assignedTo, timeoutAction *string

	err := scan(
		&item.ID,
		&item.ExecutionID,
		&item.StepID,
		&orgID,
		&item.Title,
		&description,
		&assignedTo,
		&item.Status,
		&item.DueAt,
		&timeoutAction,
		&item.CompletedAt,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan work item: %w", err)
	}

	if orgID != nil {
		item.OrganizationID = *orgID
	}
	if description != nil {
		item.Description = *description
	}
	if assignedTo != nil {
		item.AssignedTo = *assignedTo
	}
	if timeoutAction != nil {
		item.TimeoutAction = *timeoutAction
	}

	return &item, nil
}

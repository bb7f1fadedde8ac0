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

// TemplateRepo — репозиторий для работы с шаблонами.
//
// Шаблоны версионируются: каждая публикация — новая строка с
// инкрементированной версией, существующие строки не мутируются.
// Определение (шаги, связи, переменные, триггеры, настройки)
// хранится одним JSONB-документом.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// Create сохраняет новую версию шаблона.
// Версия вычисляется как max(version)+1 для данного ID.
func (r *TemplateRepo) Create(ctx context.Context, tpl *domain.Template) error {
	definition, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	query := `
		INSERT INTO templates (id, name, category, version, organization_id, definition, created_at)
		VALUES ($1, $2, $3,
		        (SELECT COALESCE(MAX(version), 0) + 1 FROM templates WHERE id = $1),
		        $4, $5, $6)
		RETURNING version
	`
	err = r.pool.QueryRow(ctx, query,
		tpl.ID,
		tpl.Name,
		nullString(tpl.Category),
		nullUUID(tpl.OrganizationID),
		definition,
		tpl.CreatedAt,
	).Scan(&tpl.Version)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	// Версию присвоила БД; кладём её и в JSONB-определение
	definition, err = json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE templates SET definition = $3 WHERE id = $1 AND version = $2`,
		tpl.ID, tpl.Version, definition,
	)
	if err != nil {
		return fmt.Errorf("store template definition: %w", err)
	}
	return nil
}

// FindVersion возвращает конкретную версию шаблона.
func (r *TemplateRepo) FindVersion(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	query := `
		SELECT definition
		FROM templates
		WHERE id = $1 AND version = $2
	`
	return r.scanTemplate(r.pool.QueryRow(ctx, query, id, version))
}

// FindLatest возвращает последнюю версию шаблона.
func (r *TemplateRepo) FindLatest(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	query := `
		SELECT definition
		FROM templates
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanTemplate(r.pool.QueryRow(ctx, query, id))
}

// List возвращает последние версии шаблонов с фильтрацией.
func (r *TemplateRepo) List(ctx context.Context, filter TemplateFilter) ([]domain.Template, error) {
	query := `
		SELECT DISTINCT ON (id) definition
		FROM templates
		WHERE ($1::uuid IS NULL OR organization_id = $1 OR organization_id IS NULL)
		  AND ($2::text IS NULL OR category = $2)
		ORDER BY id, version DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.OrganizationID),
		nullString(filter.Category),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		tpl, err := r.scanTemplateFromRows(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, rows.Err()
}

// ListVersions возвращает все версии шаблона (новые первыми).
func (r *TemplateRepo) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Template, error) {
	query := `
		SELECT definition
		FROM templates
		WHERE id = $1
		ORDER BY version DESC
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		tpl, err := r.scanTemplateFromRows(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, rows.Err()
}

// Delete удаляет все версии шаблона.
func (r *TemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// TemplateFilter — параметры фильтрации шаблонов.
type TemplateFilter struct {
	OrganizationID *uuid.UUID
	Category       string
	Limit          int
	Offset         int
}

func (r *TemplateRepo) scanTemplate(row pgx.Row) (*domain.Template, error) {
	var definition []byte

	err := row.Scan(&definition)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}

	var tpl domain.Template
	if err := json.Unmarshal(definition, &tpl); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &tpl, nil
}

func (r *TemplateRepo) scanTemplateFromRows(rows pgx.Rows) (*domain.Template, error) {
	var definition []byte

	if err := rows.Scan(&definition); err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}

	var tpl domain.Template
	if err := json.Unmarshal(definition, &tpl); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &tpl, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

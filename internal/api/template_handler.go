package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
	"github.com/savrin/operato/internal/repo"
	"github.com/savrin/operato/internal/scheduler"
)

// ListTemplates возвращает список шаблонов (последние версии).
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := repo.TemplateFilter{
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	if orgID, ok := queryUUID(w, r, "organization_id"); ok {
		filter.OrganizationID = orgID
	} else {
		return
	}

	templates, err := h.templates.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, templates, len(templates))
}

// CreateTemplate создаёт шаблон (версия 1).
// POST /api/v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	tpl := &domain.Template{
		ID:             uuid.New(),
		Name:           req.Name,
		Category:       req.Category,
		Version:        1,
		Description:    req.Description,
		Steps:          req.Steps,
		Connections:    req.Connections,
		Variables:      req.Variables,
		Triggers:       req.Triggers,
		Settings:       req.Settings,
		OrganizationID: req.OrganizationID,
		CreatedAt:      time.Now(),
	}

	if err := engine.Validate(tpl); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.templates.Create(r.Context(), tpl); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.materializeSchedules(r.Context(), tpl)

	Created(w, tpl)
}

// GetTemplate возвращает последнюю версию шаблона.
// GET /api/v1/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	tpl, err := h.templates.FindLatest(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	Success(w, tpl)
}

// DeleteTemplate удаляет шаблон со всеми версиями.
// DELETE /api/v1/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	if err := h.templates.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "template not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// ListTemplateVersions возвращает все версии шаблона.
// GET /api/v1/templates/{id}/versions
func (h *Handler) ListTemplateVersions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	versions, err := h.templates.ListVersions(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if len(versions) == 0 {
		NotFound(w, "template not found")
		return
	}

	List(w, versions, len(versions))
}

// CreateTemplateVersion публикует новую версию шаблона.
// Поля, отсутствующие в запросе, наследуются от последней версии.
// POST /api/v1/templates/{id}/versions
func (h *Handler) CreateTemplateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	var req CreateTemplateVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	latest, err := h.templates.FindLatest(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	next := *latest
	next.Version = latest.Version + 1
	next.CreatedAt = time.Now()
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Steps != nil {
		next.Steps = req.Steps
	}
	if req.Connections != nil {
		next.Connections = req.Connections
	}
	if req.Variables != nil {
		next.Variables = req.Variables
	}
	if req.Triggers != nil {
		next.Triggers = req.Triggers
	}
	if req.Settings != nil {
		next.Settings = *req.Settings
	}

	if err := engine.Validate(&next); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.templates.Create(r.Context(), &next); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.materializeSchedules(r.Context(), &next)

	Created(w, &next)
}

// GetTemplateVersion возвращает конкретную версию шаблона.
// GET /api/v1/templates/{id}/versions/{version}
func (h *Handler) GetTemplateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		BadRequest(w, "invalid version number")
		return
	}

	tpl, err := h.templates.FindVersion(r.Context(), id, version)
	if HandleRepoError(w, h.logger, err, "template version not found") {
		return
	}

	Success(w, tpl)
}

// materializeSchedules создаёт TriggerSchedule для scheduled-триггеров
// шаблона. Если у шаблона уже есть расписания (публикация новой
// версии), ничего не делает: расписания живут на уровне шаблона.
func (h *Handler) materializeSchedules(ctx context.Context, tpl *domain.Template) {
	existing, err := h.schedules.List(ctx, &tpl.ID)
	if err != nil || len(existing) > 0 {
		return
	}

	var orgID uuid.UUID
	if tpl.OrganizationID != nil {
		orgID = *tpl.OrganizationID
	}

	for _, trig := range tpl.Triggers {
		if trig.Type != domain.TriggerTypeScheduled {
			continue
		}

		now := time.Now()
		sched := &domain.TriggerSchedule{
			ID:             uuid.New(),
			TemplateID:     tpl.ID,
			OrganizationID: orgID,
			Name:           tpl.Name,
			CronExpr:       trig.CronExpr,
			IntervalSec:    trig.IntervalSec,
			Timezone:       "UTC",
			Enabled:        true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		nextDue, err := scheduler.CalculateInitialNextDue(sched)
		if err != nil {
			h.logger.Warn("skipping scheduled trigger",
				"template_id", tpl.ID, "error", err)
			continue
		}
		sched.NextDueAt = &nextDue

		if err := h.schedules.Create(ctx, sched); err != nil {
			h.logger.Error("failed to create schedule for trigger",
				"template_id", tpl.ID, "error", err)
		}
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/engine"
	"github.com/savrin/operato/internal/repo"
)

// ListExecutions возвращает список executions с фильтрацией.
// GET /api/v1/executions?template_id=&status=&organization_id=&limit=&offset=
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := repo.ExecutionFilter{
		Status: domain.ExecutionStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if id, ok := queryUUID(w, r, "template_id"); ok {
		filter.TemplateID = id
	} else {
		return
	}
	if id, ok := queryUUID(w, r, "organization_id"); ok {
		filter.OrganizationID = id
	} else {
		return
	}

	execs, err := h.execs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, execs, len(execs))
}

// StartExecution создаёт pending execution для шаблона и отдаёт его
// движку через MQ (либо движок подхватит его polling'ом).
// POST /api/v1/templates/{id}/executions
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	templateID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	var tpl *domain.Template
	if req.Version > 0 {
		tpl, err = h.templates.FindVersion(r.Context(), templateID, req.Version)
	} else {
		tpl, err = h.templates.FindLatest(r.Context(), templateID)
	}
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	vars, err := engine.SeedVariables(tpl, req.Variables)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	exec := &domain.Execution{
		ID:              uuid.New(),
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		Status:          domain.ExecutionStatusPending,
		Variables:       vars,
		Context:         req.Context,
		AssignedTo:      req.AssignedTo,
		CreatedAt:       time.Now(),
	}

	if err := h.execs.Create(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.notifyEngine(r, exec)

	Created(w, exec)
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}
	Success(w, exec)
}

// PauseExecution приостанавливает running execution.
//
// Статус записывается в БД; движок подхватывает его на границе
// текущего шага. Шаг в полёте не прерывается.
// POST /api/v1/executions/{id}/pause
func (h *Handler) PauseExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	if exec.Status != domain.ExecutionStatusRunning {
		InvalidState(w, "cannot pause execution in status "+string(exec.Status))
		return
	}

	exec.MarkPaused(req.Reason)
	if err := h.execs.Update(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("execution paused via api",
		"execution_id", exec.ID, "reason", req.Reason)
	Success(w, exec)
}

// ResumeExecution возобновляет приостановленный execution.
//
// Статус переводится в running с сохранённым current_step_id;
// движок повторно диспетчеризует шаг с нуля.
// POST /api/v1/executions/{id}/resume
func (h *Handler) ResumeExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}

	if exec.Status != domain.ExecutionStatusPaused {
		InvalidState(w, "cannot resume execution in status "+string(exec.Status))
		return
	}

	exec.MarkResumed()
	if err := h.execs.Update(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.notifyEngine(r, exec)

	h.logger.Info("execution resumed via api",
		"execution_id", exec.ID, "step_id", exec.CurrentStepID)
	Success(w, exec)
}

// CancelExecution отменяет execution.
// Допустим из любого нетерминального статуса.
// POST /api/v1/executions/{id}/cancel
func (h *Handler) CancelExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	if exec.Status.IsTerminal() {
		InvalidState(w, "cannot cancel execution in status "+string(exec.Status))
		return
	}

	exec.MarkCancelled(req.Reason)
	if err := h.execs.Update(r.Context(), exec); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("execution cancelled via api",
		"execution_id", exec.ID, "reason", req.Reason)
	Success(w, exec)
}

// ListExecutionSteps возвращает записи шагов execution.
// GET /api/v1/executions/{id}/steps
func (h *Handler) ListExecutionSteps(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}

	records, err := h.stepRecs.ListByExecution(r.Context(), exec.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, records, len(records))
}

// ListExecutionWorkItems возвращает рабочие задания execution.
// GET /api/v1/executions/{id}/workitems
func (h *Handler) ListExecutionWorkItems(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.findExecution(w, r)
	if !ok {
		return
	}

	items, err := h.workItems.ListByExecution(r.Context(), exec.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, items, len(items))
}

// --- Helpers ---

// findExecution извлекает execution по {id} из пути.
// При ошибке пишет ответ и возвращает false.
func (h *Handler) findExecution(w http.ResponseWriter, r *http.Request) (*domain.Execution, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return nil, false
	}

	exec, err := h.execs.FindByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return nil, false
	}
	return exec, true
}

// notifyEngine публикует execution.pending в MQ. Ошибка публикации
// не фатальна: движок подхватит execution через polling.
func (h *Handler) notifyEngine(r *http.Request, exec *domain.Execution) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishExecutionPending(r.Context(), exec.ID, exec.TemplateID); err != nil {
		h.logger.Warn("failed to publish execution to queue",
			"execution_id", exec.ID, "error", err)
	}
}

// queryInt читает целочисленный query-параметр с дефолтом.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// queryUUID читает необязательный UUID query-параметр.
// При невалидном значении пишет 400 и возвращает false.
func queryUUID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		BadRequest(w, "invalid "+name)
		return nil, false
	}
	return &id, true
}

package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

// ListWorkItems возвращает открытые задания исполнителя.
// GET /api/v1/workitems?assignee=&limit=
func (h *Handler) ListWorkItems(w http.ResponseWriter, r *http.Request) {
	assignee := r.URL.Query().Get("assignee")
	if assignee == "" {
		BadRequest(w, "assignee is required")
		return
	}

	items, err := h.workItems.ListByAssignee(r.Context(), assignee, queryInt(r, "limit", 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, items, len(items))
}

// GetWorkItem возвращает задание по ID.
// GET /api/v1/workitems/{id}
func (h *Handler) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid work item id")
		return
	}

	item, err := h.workItems.FindByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "work item not found") {
		return
	}

	Success(w, item)
}

// CompleteWorkItem отмечает задание выполненным.
//
// Завершение задания асинхронно относительно execution: на его
// продвижение оно не влияет, task-шаг завершился ещё при назначении.
// POST /api/v1/workitems/{id}/complete
func (h *Handler) CompleteWorkItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid work item id")
		return
	}

	item, err := h.workItems.FindByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "work item not found") {
		return
	}

	if item.Status == domain.WorkItemStatusDone || item.Status == domain.WorkItemStatusCancelled {
		InvalidState(w, "work item already closed")
		return
	}

	item.MarkDone()
	if err := h.workItems.Update(r.Context(), item); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, item)
}

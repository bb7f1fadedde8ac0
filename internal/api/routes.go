package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.CreateTemplate)))
	mux.Handle("GET /api/v1/templates/{id}", chain(http.HandlerFunc(h.GetTemplate)))
	mux.Handle("DELETE /api/v1/templates/{id}", chain(http.HandlerFunc(h.DeleteTemplate)))

	// Template Versions
	mux.Handle("GET /api/v1/templates/{id}/versions", chain(http.HandlerFunc(h.ListTemplateVersions)))
	mux.Handle("POST /api/v1/templates/{id}/versions", chain(http.HandlerFunc(h.CreateTemplateVersion)))
	mux.Handle("GET /api/v1/templates/{id}/versions/{version}", chain(http.HandlerFunc(h.GetTemplateVersion)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("POST /api/v1/templates/{id}/executions", chain(http.HandlerFunc(h.StartExecution)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
	mux.Handle("POST /api/v1/executions/{id}/pause", chain(http.HandlerFunc(h.PauseExecution)))
	mux.Handle("POST /api/v1/executions/{id}/resume", chain(http.HandlerFunc(h.ResumeExecution)))
	mux.Handle("POST /api/v1/executions/{id}/cancel", chain(http.HandlerFunc(h.CancelExecution)))
	mux.Handle("GET /api/v1/executions/{id}/steps", chain(http.HandlerFunc(h.ListExecutionSteps)))
	mux.Handle("GET /api/v1/executions/{id}/workitems", chain(http.HandlerFunc(h.ListExecutionWorkItems)))

	// Work Items
	mux.Handle("GET /api/v1/workitems", chain(http.HandlerFunc(h.ListWorkItems)))
	mux.Handle("GET /api/v1/workitems/{id}", chain(http.HandlerFunc(h.GetWorkItem)))
	mux.Handle("POST /api/v1/workitems/{id}/complete", chain(http.HandlerFunc(h.CompleteWorkItem)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/templates/{id}/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// TemplateResponse — шаблон из API.
type TemplateResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category,omitempty"`
	Version     int            `json:"version"`
	Description string         `json:"description,omitempty"`
	Steps       []any          `json:"steps"`
	Connections []any          `json:"connections"`
	Variables   []any          `json:"variables,omitempty"`
	Triggers    []any          `json:"triggers,omitempty"`
	Settings    map[string]any `json:"settings"`
	CreatedAt   string         `json:"created_at"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID              string         `json:"id"`
	TemplateID      string         `json:"template_id"`
	TemplateVersion int            `json:"template_version"`
	Status          string         `json:"status"`
	CurrentStepID   string         `json:"current_step_id,omitempty"`
	Progress        int            `json:"progress"`
	Variables       map[string]any `json:"variables,omitempty"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	PauseReason     string         `json:"pause_reason,omitempty"`
	CancelReason    string         `json:"cancel_reason,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       string         `json:"started_at,omitempty"`
	FinishedAt      string         `json:"finished_at,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// StepResponse — запись шага из API.
type StepResponse struct {
	ID              string         `json:"id"`
	ExecutionID     string         `json:"execution_id"`
	StepID          string         `json:"step_id"`
	Name            string         `json:"name,omitempty"`
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	Outputs         map[string]any `json:"outputs,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	EscalationLevel int            `json:"escalation_level"`
	StartedAt       string         `json:"started_at,omitempty"`
	FinishedAt      string         `json:"finished_at,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// WorkItemResponse — рабочее задание из API.
type WorkItemResponse struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	Status      string `json:"status"`
	DueAt       string `json:"due_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID              string         `json:"id"`
	TemplateID      string         `json:"template_id"`
	Name            string         `json:"name,omitempty"`
	CronExpr        string         `json:"cron_expr,omitempty"`
	IntervalSec     int            `json:"interval_sec,omitempty"`
	Timezone        string         `json:"timezone"`
	Enabled         bool           `json:"enabled"`
	NextDueAt       string         `json:"next_due_at,omitempty"`
	LastRunAt       string         `json:"last_run_at,omitempty"`
	LastExecutionID string         `json:"last_execution_id,omitempty"`
	Variables       map[string]any `json:"variables,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

// --- Request types ---

// StartExecutionRequest — запуск шаблона.
type StartExecutionRequest struct {
	Version    int            `json:"version,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
	Context    map[string]any `json:"context"`
	AssignedTo string         `json:"assigned_to,omitempty"`
}

// ReasonRequest — тело pause/cancel.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name           string         `json:"name,omitempty"`
	CronExpr       string         `json:"cron_expr,omitempty"`
	IntervalSec    int            `json:"interval_sec,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	OrganizationID string         `json:"organization_id"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// UpdateScheduleRequest — обновление расписания.
type UpdateScheduleRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// ListExecutionsOpts — параметры фильтрации executions.
type ListExecutionsOpts struct {
	TemplateID string
	Status     string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Operato API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Templates ---

// ListTemplates возвращает шаблоны (последние версии).
func (c *Client) ListTemplates(category string) ([]TemplateResponse, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}

	var templates []TemplateResponse
	err := c.list("/api/v1/templates", params, &templates)
	return templates, err
}

// CreateTemplate создаёт шаблон из JSON-определения.
func (c *Client) CreateTemplate(definition json.RawMessage) (*TemplateResponse, error) {
	var tpl TemplateResponse
	err := c.doData(http.MethodPost, "/api/v1/templates", definition, &tpl)
	return &tpl, err
}

// GetTemplate возвращает последнюю версию шаблона.
func (c *Client) GetTemplate(id string) (*TemplateResponse, error) {
	var tpl TemplateResponse
	err := c.get("/api/v1/templates/"+id, &tpl)
	return &tpl, err
}

// DeleteTemplate удаляет шаблон.
func (c *Client) DeleteTemplate(id string) error {
	return c.delete("/api/v1/templates/" + id)
}

// ListVersions возвращает версии шаблона.
func (c *Client) ListVersions(templateID string) ([]TemplateResponse, error) {
	var versions []TemplateResponse
	err := c.list("/api/v1/templates/"+templateID+"/versions", nil, &versions)
	return versions, err
}

// PublishVersion публикует новую версию шаблона.
func (c *Client) PublishVersion(templateID string, definition json.RawMessage) (*TemplateResponse, error) {
	var tpl TemplateResponse
	err := c.doData(http.MethodPost, "/api/v1/templates/"+templateID+"/versions", definition, &tpl)
	return &tpl, err
}

// --- Executions ---

// ListExecutions возвращает executions с фильтрацией.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.TemplateID != "" {
		params.Set("template_id", opts.TemplateID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var execs []ExecutionResponse
	err := c.list("/api/v1/executions", params, &execs)
	return execs, err
}

// StartExecution запускает шаблон.
func (c *Client) StartExecution(templateID string, req StartExecutionRequest) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/templates/"+templateID+"/executions", req, &exec)
	return &exec, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &exec)
	return &exec, err
}

// PauseExecution приостанавливает execution.
func (c *Client) PauseExecution(id, reason string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/pause", ReasonRequest{Reason: reason}, &exec)
	return &exec, err
}

// ResumeExecution возобновляет execution.
func (c *Client) ResumeExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/resume", nil, &exec)
	return &exec, err
}

// CancelExecution отменяет execution.
func (c *Client) CancelExecution(id, reason string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post("/api/v1/executions/"+id+"/cancel", ReasonRequest{Reason: reason}, &exec)
	return &exec, err
}

// ListSteps возвращает записи шагов execution.
func (c *Client) ListSteps(executionID string) ([]StepResponse, error) {
	var steps []StepResponse
	err := c.list("/api/v1/executions/"+executionID+"/steps", nil, &steps)
	return steps, err
}

// ListExecutionWorkItems возвращает задания execution.
func (c *Client) ListExecutionWorkItems(executionID string) ([]WorkItemResponse, error) {
	var items []WorkItemResponse
	err := c.list("/api/v1/executions/"+executionID+"/workitems", nil, &items)
	return items, err
}

// --- Work Items ---

// ListWorkItems возвращает открытые задания исполнителя.
func (c *Client) ListWorkItems(assignee string) ([]WorkItemResponse, error) {
	params := url.Values{}
	params.Set("assignee", assignee)

	var items []WorkItemResponse
	err := c.list("/api/v1/workitems", params, &items)
	return items, err
}

// GetWorkItem возвращает задание по ID.
func (c *Client) GetWorkItem(id string) (*WorkItemResponse, error) {
	var item WorkItemResponse
	err := c.get("/api/v1/workitems/"+id, &item)
	return &item, err
}

// CompleteWorkItem отмечает задание выполненным.
func (c *Client) CompleteWorkItem(id string) (*WorkItemResponse, error) {
	var item WorkItemResponse
	err := c.post("/api/v1/workitems/"+id+"/complete", nil, &item)
	return &item, err
}

// --- Schedules ---

// ListSchedules возвращает расписания. Если templateID не пустой — фильтрует.
func (c *Client) ListSchedules(templateID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if templateID != "" {
		params.Set("template_id", templateID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание для шаблона.
func (c *Client) CreateSchedule(templateID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/templates/"+templateID+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет расписание.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает расписание.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает расписание.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

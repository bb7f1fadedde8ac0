package api

import (
	"log/slog"

	"github.com/savrin/operato/internal/mq"
	"github.com/savrin/operato/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	templates *repo.TemplateRepo
	execs     *repo.ExecutionRepo
	stepRecs  *repo.StepExecutionRepo
	workItems *repo.WorkItemRepo
	schedules *repo.ScheduleRepo
	publisher *mq.Publisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	TemplateRepo      *repo.TemplateRepo
	ExecutionRepo     *repo.ExecutionRepo
	StepExecutionRepo *repo.StepExecutionRepo
	WorkItemRepo      *repo.WorkItemRepo
	ScheduleRepo      *repo.ScheduleRepo

	// Publisher — опционален. Без него созданные executions
	// подхватываются движком через polling.
	Publisher *mq.Publisher

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		templates: cfg.TemplateRepo,
		execs:     cfg.ExecutionRepo,
		stepRecs:  cfg.StepExecutionRepo,
		workItems: cfg.WorkItemRepo,
		schedules: cfg.ScheduleRepo,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}

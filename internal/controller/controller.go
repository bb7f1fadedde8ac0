package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
	"github.com/savrin/operato/internal/events"
	"github.com/savrin/operato/internal/mq"
	"github.com/savrin/operato/internal/steps"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// TemplateStore — доступ контроллера к шаблонам.
type TemplateStore interface {
	// FindVersion возвращает конкретную версию шаблона.
	FindVersion(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error)

	// FindLatest возвращает последнюю версию шаблона.
	FindLatest(ctx context.Context, id uuid.UUID) (*domain.Template, error)
}

// ExecutionStore — доступ контроллера к executions.
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Update(ctx context.Context, exec *domain.Execution) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)

	// ListPending возвращает executions в статусе pending (для polling).
	ListPending(ctx context.Context, limit int) ([]domain.Execution, error)
}

// StepExecutionStore — доступ контроллера к записям шагов.
type StepExecutionStore interface {
	Create(ctx context.Context, rec *domain.StepExecution) error
	Update(ctx context.Context, rec *domain.StepExecution) error
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.StepExecution, error)
}

// Controller управляет выполнением executions.
//
// Controller — центральный компонент движка, который:
//   - Получает новые executions из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending executions в БД (polling fallback)
//   - Двигает каждый execution по шагам вдоль открытых connections
//   - Применяет политику retry/escalation к упавшим шагам
//   - Эмитит упорядоченный поток событий жизненного цикла
//
// Продвижение одного execution однопоточно: переходы обрабатывает
// одна горутина, поэтому порядок событий execution детерминирован.
type Controller struct {
	// Stores
	templates  TemplateStore
	executions ExecutionStore
	stepRecs   StepExecutionStore

	// Step dispatch
	registry *steps.Registry

	// Events
	bus *events.Bus

	// MQ (опционально: nil — работа только через polling/прямые вызовы)
	publisher *mq.Publisher
	conn      *mq.Connection
	consumer  *mq.Consumer

	// Active executions (executionID → state)
	active map[uuid.UUID]*ExecState
	mu     sync.RWMutex

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Controller.
type Config struct {
	// Stores
	Templates      TemplateStore
	Executions     ExecutionStore
	StepExecutions StepExecutionStore

	// Registry поведений шагов.
	Registry *steps.Registry

	// Bus — шина событий. Если nil, создаётся новая.
	Bus *events.Bus

	// MQ (опционально)
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество executions за один poll (default: 100)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Controller.
func New(cfg Config) *Controller {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}

	return &Controller{
		templates:    cfg.Templates,
		executions:   cfg.Executions,
		stepRecs:     cfg.StepExecutions,
		registry:     cfg.Registry,
		bus:          bus,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		active:       make(map[uuid.UUID]*ExecState),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Bus возвращает шину событий контроллера.
func (c *Controller) Bus() *events.Bus {
	return c.bus
}

// Start запускает Controller.
//
// Запускает:
//   - Consumer для executions.pending (если настроен MQ)
//   - Polling горутину для fallback
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.runCtx = ctx
	c.cancelFunc = cancel

	c.logger.Info("starting controller",
		"poll_interval", c.pollInterval,
		"batch_size", c.batchSize,
	)

	if c.conn != nil {
		c.consumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueExecutionsPending),
			Handler:  c.handleExecutionPending,
			Prefetch: 10,
		})

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("execution consumer error", "error", err)
			}
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	c.logger.Info("controller started")
	return nil
}

// Stop останавливает Controller.
func (c *Controller) Stop() {
	c.stoppedMu.Lock()
	c.stopped = true
	c.stoppedMu.Unlock()

	c.logger.Info("stopping controller...")

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	if c.consumer != nil {
		c.consumer.Stop()
	}

	c.wg.Wait()

	c.logger.Info("controller stopped",
		"active_executions", len(c.active),
	)
}

// IsStopped проверяет, остановлен ли Controller.
func (c *Controller) IsStopped() bool {
	c.stoppedMu.RLock()
	defer c.stoppedMu.RUnlock()
	return c.stopped
}

// handleExecutionPending обрабатывает событие из очереди executions.pending.
func (c *Controller) handleExecutionPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := delivery.ExecutionPending()
	if err != nil {
		c.logger.Error("failed to parse execution.pending payload", "error", err)
		return err
	}

	c.logger.Debug("received execution.pending event",
		"execution_id", payload.ExecutionID,
	)

	if err := c.Activate(ctx, payload.ExecutionID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrExecutionAlreadyActive) || errors.Is(err, ErrExecutionNotPending) {
			return nil
		}
		c.logger.Error("failed to activate execution",
			"execution_id", payload.ExecutionID,
			"error", err,
		)
		return err
	}
	return nil
}

// pollLoop — цикл polling для fallback.
func (c *Controller) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем executions,
	// созданные пока движок был выключен)
	c.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (c *Controller) poll(ctx context.Context) {
	pending, err := c.executions.ListPending(ctx, c.batchSize)
	if err != nil {
		c.logger.Error("failed to list pending executions", "error", err)
		return
	}

	if len(pending) == 0 {
		return
	}

	c.logger.Debug("poll found pending executions", "count", len(pending))

	for i := range pending {
		exec := &pending[i]
		if c.isActive(exec.ID) {
			continue
		}
		if err := c.Activate(ctx, exec.ID); err != nil && !errors.Is(err, ErrExecutionAlreadyActive) {
			c.logger.Error("failed to activate execution from poll",
				"execution_id", exec.ID,
				"error", err,
			)
		}
	}
}

// isActive проверяет, обрабатывается ли execution.
func (c *Controller) isActive(executionID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.active[executionID]
	return exists
}

// getActive возвращает активный ExecState или nil.
func (c *Controller) getActive(executionID uuid.UUID) *ExecState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active[executionID]
}

// addActive добавляет execution в активные.
func (c *Controller) addActive(st *ExecState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[st.ExecutionID()]; exists {
		return ErrExecutionAlreadyActive
	}
	c.active[st.ExecutionID()] = st
	return nil
}

// removeActive удаляет execution из активных.
func (c *Controller) removeActive(executionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, executionID)
}

// ActiveCount возвращает количество активных executions.
func (c *Controller) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// ActiveStats возвращает статистику по активному execution.
func (c *Controller) ActiveStats(executionID uuid.UUID) (ExecStats, bool) {
	st := c.getActive(executionID)
	if st == nil {
		return ExecStats{}, false
	}
	return st.Stats(), true
}

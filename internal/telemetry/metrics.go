package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Экспортируются на /metrics каждого сервиса.
var (
	// ExecutionsStarted — количество запущенных executions.
	ExecutionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_executions_started_total",
		Help: "Number of workflow executions started.",
	})

	// ExecutionsCompleted — количество успешно завершённых executions.
	ExecutionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_executions_completed_total",
		Help: "Number of workflow executions completed successfully.",
	})

	// ExecutionsFailed — количество упавших executions.
	ExecutionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_executions_failed_total",
		Help: "Number of workflow executions that ended in failure.",
	})

	// ExecutionsCancelled — количество отменённых executions.
	ExecutionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_executions_cancelled_total",
		Help: "Number of workflow executions cancelled.",
	})

	// StepsDispatched — количество диспетчеризаций шагов по типам.
	StepsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "operato_steps_dispatched_total",
		Help: "Number of step dispatches by step type.",
	}, []string{"type"})

	// StepFailures — количество падений шагов по типам.
	StepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "operato_step_failures_total",
		Help: "Number of step failures by step type.",
	}, []string{"type"})

	// StepRetries — количество повторных попыток шагов.
	StepRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_step_retries_total",
		Help: "Number of step retry attempts.",
	})

	// StepEscalations — количество эскалаций шагов.
	StepEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "operato_step_escalations_total",
		Help: "Number of step escalations.",
	})

	// StepDuration — длительность выполнения шагов по типам.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "operato_step_duration_seconds",
		Help:    "Step execution duration by step type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)

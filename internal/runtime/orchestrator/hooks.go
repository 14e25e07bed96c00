package orchestrator

import (
	"context"
	"time"

	"github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metrics"
)

// ExecutionContext describes one orchestrated execution to hooks.
type ExecutionContext struct {
	// Operation is the name passed to Execute.
	Operation string
	// CorrelationID is empty in OnStart when the request arrived without one.
	CorrelationID string
	Context       context.Context
	StartedAt     time.Time
	// Duration and StatusCode are set for OnDone and OnError only.
	Duration   time.Duration
	StatusCode int
}

// Hooks are optional lifecycle callbacks. Nil hooks are skipped.
type Hooks struct {
	OnStart func(ExecutionContext)
	OnDone  func(ExecutionContext)
	// OnError also fires for requests rejected by validation.
	OnError func(ExecutionContext, error)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart: chain(h.OnStart, other.OnStart),
		OnDone:  chain(h.OnDone, other.OnDone),
		OnError: chainError(h.OnError, other.OnError),
	}
}

func chain(a, b func(ExecutionContext)) func(ExecutionContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ec ExecutionContext) {
		a(ec)
		b(ec)
	}
}

func chainError(a, b func(ExecutionContext, error)) func(ExecutionContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ec ExecutionContext, err error) {
		a(ec, err)
		b(ec, err)
	}
}

// LoggingHooks logs every execution through logger.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	return Hooks{
		OnStart: func(ec ExecutionContext) {
			logger.Debug("operation started", logging.LogFields{
				"operation":      ec.Operation,
				"correlation_id": ec.CorrelationID,
			})
		},
		OnDone: func(ec ExecutionContext) {
			logger.Info("operation completed", logging.LogFields{
				"operation":      ec.Operation,
				"correlation_id": ec.CorrelationID,
				"duration_ms":    ec.Duration.Milliseconds(),
				"status_code":    ec.StatusCode,
			})
		},
		OnError: func(ec ExecutionContext, err error) {
			logger.Error("operation failed", err, logging.LogFields{
				"operation":      ec.Operation,
				"correlation_id": ec.CorrelationID,
				"duration_ms":    ec.Duration.Milliseconds(),
				"status_code":    ec.StatusCode,
			})
		},
	}
}

// MetricsHooks records executions per operation and status code.
func MetricsHooks(m *metrics.Metrics) Hooks {
	observe := func(ec ExecutionContext) {
		m.ObserveExecution(ec.Operation, ec.StatusCode, ec.Duration)
	}
	return Hooks{
		OnDone:  observe,
		OnError: func(ec ExecutionContext, _ error) { observe(ec) },
	}
}

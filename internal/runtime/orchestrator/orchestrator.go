// Package orchestrator runs a business operation inside the request pipeline:
// validate, announce, execute, enrich and report. It turns every outcome,
// including panics, into a Result and never lets record emission fail the
// call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/reportflow/internal/runtime/errors"
	"github.com/drblury/reportflow/internal/runtime/records"
	"github.com/drblury/reportflow/internal/runtime/request"
	"github.com/drblury/reportflow/internal/runtime/validation"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// EventErrorOccurred is emitted alongside the Error record of a failure.
	EventErrorOccurred = "ErrorOccurred"
	reasonReceived     = "request received"
)

// Operation is the business step being orchestrated. req is read-only.
type Operation func(ctx context.Context, req *request.Request) (any, error)

// Emitter is the record sink the orchestrator reports to.
type Emitter interface {
	LogRequestOutcome(ctx context.Context, req *request.Request, valid bool, reason, flow string)
	LogCompletion(ctx context.Context, rec *records.RequestOutcome)
	LogEvent(ctx context.Context, req *request.Request, name string, data map[string]any)
	LogError(ctx context.Context, req *request.Request, message, stack string)
}

type Validator interface {
	Validate(req *request.Request) validation.Outcome
}

type Enricher interface {
	Enrich(req *request.Request) *request.Request
}

// Result is the response envelope. StatusCode is the HTTP status the
// transport should answer with.
type Result struct {
	StatusCode    int    `json:"-"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlationId"`
	Data          any    `json:"data,omitempty"`
}

// PanicError wraps a value recovered from an operation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Options wires an Orchestrator. Emitter is required.
type Options struct {
	Emitter   Emitter
	Validator Validator
	Enricher  Enricher
	Clock     request.Clock
	Hooks     Hooks
	Tracer    trace.Tracer
}

type Orchestrator struct {
	emitter   Emitter
	validator Validator
	enricher  Enricher
	clock     request.Clock
	hooks     Hooks
	tracer    trace.Tracer
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Emitter == nil {
		return nil, errspkg.ErrEmitterRequired
	}
	if opts.Clock == nil {
		opts.Clock = request.SystemClock
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/drblury/reportflow/orchestrator")
	}
	return &Orchestrator{
		emitter:   opts.Emitter,
		validator: opts.Validator,
		enricher:  opts.Enricher,
		clock:     opts.Clock,
		hooks:     opts.Hooks,
		tracer:    opts.Tracer,
	}, nil
}

// WithEnricher returns a copy of o that enriches with e, typically a
// route-bound enricher.
func (o *Orchestrator) WithEnricher(e Enricher) *Orchestrator {
	cp := *o
	cp.enricher = e
	return &cp
}

// Execute validates req, runs op and reports the outcome. It always returns a
// Result; op is never invoked for a request that fails validation.
func (o *Orchestrator) Execute(ctx context.Context, req *request.Request, op Operation, name string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	ec := ExecutionContext{Operation: name, Context: ctx, StartedAt: started}
	if req != nil {
		ec.CorrelationID = req.CorrelationID
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("reportflow.operation", name)),
	)
	defer span.End()

	if o.hooks.OnStart != nil {
		o.hooks.OnStart(ec)
	}

	if result, rejected := o.validate(ctx, req, span, ec, started); rejected {
		return result
	}

	ec.CorrelationID = req.CorrelationID
	ctx = request.WithCorrelationID(ctx, req.CorrelationID)
	span.SetAttributes(attribute.String("reportflow.correlation_id", req.CorrelationID))

	o.emitter.LogRequestOutcome(ctx, req, true, reasonReceived, "")
	o.emitter.LogEvent(ctx, req, name+"Started", nil)

	data, err := o.invoke(ctx, req, op)
	elapsed := time.Since(started)
	ec.Duration = elapsed

	if err != nil {
		return o.fail(ctx, req, span, ec, err)
	}

	req.Success = request.Bool(true)
	req.ExecutionTimeMs = elapsed.Milliseconds()
	if o.enricher != nil {
		o.enricher.Enrich(req)
	}
	o.emitter.LogEvent(ctx, req, name+"Completed", map[string]any{"executionTimeMs": elapsed.Milliseconds()})

	ec.StatusCode = http.StatusOK
	span.SetAttributes(attribute.Int("http.response.status_code", http.StatusOK))
	if o.hooks.OnDone != nil {
		o.hooks.OnDone(ec)
	}
	return Result{
		StatusCode:    http.StatusOK,
		Status:        StatusSuccess,
		CorrelationID: req.CorrelationID,
		Data:          data,
	}
}

func (o *Orchestrator) validate(ctx context.Context, req *request.Request, span trace.Span, ec ExecutionContext, started time.Time) (Result, bool) {
	var outcome validation.Outcome
	switch {
	case o.validator != nil:
		outcome = o.validator.Validate(req)
	case req == nil:
		outcome = validation.Outcome{Reason: validation.ReasonNilRequest, Trail: validation.ReasonNilRequest}
	default:
		return Result{}, false
	}
	if outcome.Valid {
		return Result{}, false
	}

	correlationID := ""
	if req != nil {
		correlationID = req.CorrelationID
	}
	if correlationID != "" {
		ctx = request.WithCorrelationID(ctx, correlationID)
	}
	o.emitter.LogCompletion(ctx, records.NewRequestOutcome(o.clock(), req, records.StatusBlocked, outcome.Reason, outcome.Trail))

	ec.CorrelationID = correlationID
	ec.Duration = time.Since(started)
	ec.StatusCode = errspkg.ClassValidation.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", ec.StatusCode))
	span.SetStatus(codes.Error, outcome.Reason)
	if o.hooks.OnError != nil {
		o.hooks.OnError(ec, errors.New(outcome.Reason))
	}
	return Result{
		StatusCode:    ec.StatusCode,
		Status:        StatusError,
		Message:       outcome.Reason,
		Detail:        outcome.Trail,
		CorrelationID: correlationID,
	}, true
}

func (o *Orchestrator) invoke(ctx context.Context, req *request.Request, op Operation) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if op == nil {
		return nil, errspkg.ErrOperationRequired
	}
	return op(ctx, req)
}

func (o *Orchestrator) fail(ctx context.Context, req *request.Request, span trace.Span, ec ExecutionContext, err error) Result {
	class := errspkg.Classify(err)
	status := class.StatusCode()

	stack := errspkg.Trace(err)
	var pe *PanicError
	if errors.As(err, &pe) {
		stack = string(pe.Stack)
	}

	req.Success = request.Bool(false)
	req.ExecutionTimeMs = ec.Duration.Milliseconds()

	o.emitter.LogError(ctx, req, err.Error(), stack)
	o.emitter.LogEvent(ctx, req, EventErrorOccurred, map[string]any{
		"errorClass":   string(class),
		"errorType":    fmt.Sprintf("%T", err),
		"errorMessage": err.Error(),
		"statusCode":   status,
	})

	ec.StatusCode = status
	span.RecordError(err)
	span.SetStatus(codes.Error, class.Message())
	span.SetAttributes(
		attribute.String("reportflow.error_class", string(class)),
		attribute.Int("http.response.status_code", status),
	)
	if o.hooks.OnError != nil {
		o.hooks.OnError(ec, err)
	}
	return Result{
		StatusCode:    status,
		Status:        StatusError,
		Message:       class.Message(),
		Detail:        err.Error(),
		CorrelationID: req.CorrelationID,
	}
}

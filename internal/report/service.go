package report

import (
	"context"
	"fmt"
	"time"

	errspkg "github.com/drblury/reportflow/internal/runtime/errors"
	"github.com/drblury/reportflow/internal/runtime/orchestrator"
	"github.com/drblury/reportflow/internal/runtime/request"
)

// Event names emitted while a report is produced.
const (
	EventGettingTopProducts      = "GettingTopProducts"
	EventGeneratingReport        = "GeneratingReport"
	EventSchedulingFailed        = "NotificationSchedulingFailed"
	EventGeneratedAndScheduled   = "ReportGeneratedAndJobsScheduled"
	OperationGenerateTopProducts = "GenerateTopProductsReport"
)

type ProductSource interface {
	TopProducts(ctx context.Context, limit int) ([]ProductSale, error)
}

type Renderer interface {
	Render(title string, products []ProductSale, generatedAt time.Time) ([]byte, error)
}

type ArtifactSink interface {
	Store(ctx context.Context, payload []byte, fileName, correlationID string) error
}

type Scheduler interface {
	ScheduleNotifications(ctx context.Context, job NotificationJob) error
}

// Events is the part of the record emitter the report flow uses.
type Events interface {
	LogEvent(ctx context.Context, req *request.Request, name string, data map[string]any)
	LogWarning(ctx context.Context, req *request.Request, name string, data map[string]any)
}

// Dependencies wires a Service. All fields except Clock and DefaultLimit are
// required.
type Dependencies struct {
	Products     ProductSource
	Renderer     Renderer
	Sink         ArtifactSink
	Scheduler    Scheduler
	Events       Events
	Clock        request.Clock
	DefaultLimit int
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) (*Service, error) {
	switch {
	case deps.Products == nil:
		return nil, fmt.Errorf("report: product source is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("report: renderer is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("report: artifact sink is required")
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("report: scheduler is required")
	case deps.Events == nil:
		return nil, errspkg.ErrEmitterRequired
	}
	if deps.Clock == nil {
		deps.Clock = request.SystemClock
	}
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 10
	}
	return &Service{deps: deps}, nil
}

// Operation adapts one report request to the orchestrator.
func (s *Service) Operation(tr *TopProductsRequest) orchestrator.Operation {
	return func(ctx context.Context, _ *request.Request) (any, error) {
		return s.GenerateTopProducts(ctx, tr)
	}
}

// GenerateTopProducts runs the whole report flow. A scheduler failure is
// reported as a warning event and does not fail the run.
func (s *Service) GenerateTopProducts(ctx context.Context, tr *TopProductsRequest) (*Summary, error) {
	if tr == nil {
		return nil, errspkg.MalformedInput("payload", "request is required")
	}
	limit, err := s.limit(tr.Payload.Limit)
	if err != nil {
		return nil, err
	}
	req := &tr.Request
	ev := s.deps.Events

	ev.LogEvent(ctx, req, EventGettingTopProducts, map[string]any{"limit": limit})
	products, err := s.deps.Products.TopProducts(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, errspkg.InvalidState(nil, "no products found for the given criteria")
	}

	ev.LogEvent(ctx, req, EventGeneratingReport, map[string]any{"productCount": len(products)})
	generatedAt := s.deps.Clock()
	doc, err := s.deps.Renderer.Render(tr.Payload.ReportTitle, products, generatedAt)
	if err != nil {
		return nil, err
	}

	fileName := FileName(generatedAt)
	if err := s.deps.Sink.Store(ctx, doc, fileName, req.CorrelationID); err != nil {
		return nil, errspkg.InvalidState(err, "report could not be stored")
	}

	job := NotificationJob{
		CorrelationID:    req.CorrelationID,
		ReportFileName:   fileName,
		EmailAddress:     req.EmailAddress,
		MessageRecipient: req.MessageRecipient,
		Subject:          req.Subject,
		MessageBody:      req.MessageBody,
		PlatformType:     req.PlatformType,
	}
	message := "Report generated, stored and notification jobs scheduled"
	if err := s.deps.Scheduler.ScheduleNotifications(ctx, job); err != nil {
		ev.LogWarning(ctx, req, EventSchedulingFailed, map[string]any{
			"fileName":     fileName,
			"errorMessage": err.Error(),
		})
		message = "Report generated and stored; notification jobs could not be scheduled"
	}

	ev.LogEvent(ctx, req, EventGeneratedAndScheduled, map[string]any{
		"productCount": len(products),
		"reportSize":   len(doc),
		"fileName":     fileName,
	})

	return &Summary{
		Message:      message,
		ProductCount: len(products),
		FileName:     fileName,
		ReportSize:   len(doc),
		GeneratedAt:  generatedAt,
	}, nil
}

func (s *Service) limit(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, errspkg.MalformedInput("payload.limit", "must not be negative, got %d", requested)
	case requested == 0:
		return s.deps.DefaultLimit, nil
	case requested > MaxLimit:
		return 0, errspkg.MalformedInput("payload.limit", "must not exceed %d, got %d", MaxLimit, requested)
	default:
		return requested, nil
	}
}

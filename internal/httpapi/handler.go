package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/drblury/reportflow/internal/report"
	errspkg "github.com/drblury/reportflow/internal/runtime/errors"
	"github.com/drblury/reportflow/internal/runtime/orchestrator"
	"github.com/drblury/reportflow/internal/runtime/request"
)

const RouteTopProducts = "/api/reports/top-products"

// Executor runs an operation through the request pipeline.
type Executor interface {
	Execute(ctx context.Context, req *request.Request, op orchestrator.Operation, name string) orchestrator.Result
}

// ReportOperations builds the pipeline operation for a report request.
type ReportOperations interface {
	Operation(tr *report.TopProductsRequest) orchestrator.Operation
}

type ReportHandler struct {
	exec    Executor
	reports ReportOperations
}

func NewReportHandler(exec Executor, reports ReportOperations) *ReportHandler {
	return &ReportHandler{exec: exec, reports: reports}
}

// TopProducts handles POST /api/reports/top-products.
func (h *ReportHandler) TopProducts(c echo.Context) error {
	var body report.TopProductsRequest
	if err := c.Echo().JSONSerializer.Deserialize(c, &body); err != nil {
		detail := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			if msg, ok := he.Message.(string); ok {
				detail = msg
			}
		}
		return c.JSON(http.StatusBadRequest, orchestrator.Result{
			Status:        orchestrator.StatusError,
			Message:       errspkg.ClassMalformedInput.Message(),
			Detail:        detail,
			CorrelationID: CorrelationID(c),
		})
	}

	if strings.TrimSpace(body.CorrelationID) == "" {
		body.CorrelationID = CorrelationID(c)
	}
	res := h.exec.Execute(c.Request().Context(), &body.Request, h.reports.Operation(&body), report.OperationGenerateTopProducts)
	return c.JSON(res.StatusCode, res)
}

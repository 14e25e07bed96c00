package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drblury/reportflow/internal/runtime/enrich"
	"github.com/drblury/reportflow/internal/runtime/ids"
	"github.com/drblury/reportflow/internal/runtime/records"
	"github.com/drblury/reportflow/internal/runtime/request"
)

// Trace headers stamped on every API request.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderService       = "X-Service"
	HeaderEndpoint      = "X-Endpoint"
	HeaderTimestamp     = "X-Timestamp"
	HeaderServerHost    = "X-Server-Host"

	// ContextKeyCorrelationID holds the id in the echo context.
	ContextKeyCorrelationID = "correlation_id"
)

// CompletionEmitter receives one outcome record per HTTP request.
type CompletionEmitter interface {
	LogCompletion(ctx context.Context, rec *records.RequestOutcome)
}

type CorrelationConfig struct {
	Identity enrich.Identity
	Emitter  CompletionEmitter
	Clock    request.Clock
	NewID    func() string
}

// Correlation assigns every request a correlation id, stamps the trace
// headers and records the request's outcome once the handler returns.
func Correlation(cfg CorrelationConfig) echo.MiddlewareFunc {
	if cfg.Emitter == nil {
		panic("httpapi: correlation middleware needs an emitter")
	}
	if cfg.Clock == nil {
		cfg.Clock = request.SystemClock
	}
	if cfg.NewID == nil {
		cfg.NewID = ids.NewCorrelationID
	}
	identity := cfg.Identity

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			id := strings.TrimSpace(r.Header.Get(HeaderCorrelationID))
			if id == "" {
				id = cfg.NewID()
			}
			endpoint := r.URL.Path

			r.Header.Set(HeaderCorrelationID, id)
			r.Header.Set(HeaderService, identity.Service)
			r.Header.Set(HeaderEndpoint, endpoint)
			r.Header.Set(HeaderTimestamp, cfg.Clock().Format(time.RFC3339Nano))
			r.Header.Set(HeaderServerHost, identity.Host)

			ctx := request.WithCorrelationID(r.Context(), id)
			c.SetRequest(r.WithContext(ctx))
			c.Set(ContextKeyCorrelationID, id)

			res := c.Response()
			res.Before(func() {
				h := res.Header()
				h.Set(HeaderCorrelationID, id)
				h.Set(HeaderService, identity.Service)
				h.Set(HeaderServerHost, identity.Host)
			})

			started := time.Now()
			outcome := func(status records.OutcomeStatus, success bool, reason string) *records.RequestOutcome {
				req := &request.Request{
					CorrelationID:   id,
					Service:         identity.Service,
					Endpoint:        endpoint,
					ServerHost:      identity.Host,
					ExecutionTimeMs: time.Since(started).Milliseconds(),
					Success:         request.Bool(success),
				}
				return records.NewRequestOutcome(cfg.Clock(), req, status, reason, reason)
			}

			returned := false
			defer func() {
				if returned {
					return
				}
				if p := recover(); p != nil {
					cfg.Emitter.LogCompletion(ctx, outcome(records.StatusError, false, fmt.Sprintf("request panicked: %v", p)))
					panic(p)
				}
			}()

			err := next(c)
			returned = true

			if err != nil {
				cfg.Emitter.LogCompletion(ctx, outcome(records.StatusError, false, "request failed: "+err.Error()))
				return err
			}

			code := res.Status
			status, success := records.StatusValid, true
			if code >= http.StatusBadRequest {
				status, success = records.StatusBlocked, false
			}
			cfg.Emitter.LogCompletion(ctx, outcome(status, success, fmt.Sprintf("request completed with status %d", code)))
			return nil
		}
	}
}

// CorrelationID returns the id assigned by Correlation, or "".
func CorrelationID(c echo.Context) string {
	id, _ := c.Get(ContextKeyCorrelationID).(string)
	return id
}

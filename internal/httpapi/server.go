// Package httpapi is the HTTP surface of the report service.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metrics"
)

type ServerOptions struct {
	Correlation CorrelationConfig
	Reports     *ReportHandler
	Logger      logging.ServiceLogger
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server wraps the echo instance with the routes registered.
type Server struct {
	Echo   *echo.Echo
	logger logging.ServiceLogger
}

func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	log := opts.Logger.With(logging.LogFields{"component": "http"})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = Serializer{}
	e.Use(middleware.Recover(), requestLogger(log))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api", Correlation(opts.Correlation), responseMetrics(opts.Metrics))
	if opts.Reports != nil {
		api.POST("/reports/top-products", opts.Reports.TopProducts)
	}

	return &Server{Echo: e, logger: log}
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", logging.LogFields{"address": addr})
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func requestLogger(log logging.ServiceLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := logging.LogFields{
				"method":         v.Method,
				"uri":            v.URI,
				"status":         v.Status,
				"latency_ms":     v.Latency.Milliseconds(),
				"correlation_id": c.Response().Header().Get(HeaderCorrelationID),
			}
			if v.Error != nil {
				log.Error("request failed", v.Error, fields)
				return nil
			}
			log.Debug("request served", fields)
			return nil
		},
	})
}

func responseMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			code := c.Response().Status
			if err != nil {
				code = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					code = he.Code
				}
			}
			m.ObserveResponse(c.Path(), code)
			return err
		}
	}
}

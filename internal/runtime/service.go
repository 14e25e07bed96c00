package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/reportflow/internal/httpapi"
	"github.com/drblury/reportflow/internal/report"
	"github.com/drblury/reportflow/internal/runtime/broker"
	configpkg "github.com/drblury/reportflow/internal/runtime/config"
	"github.com/drblury/reportflow/internal/runtime/emitter"
	"github.com/drblury/reportflow/internal/runtime/enrich"
	"github.com/drblury/reportflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metrics"
	"github.com/drblury/reportflow/internal/runtime/orchestrator"
	"github.com/drblury/reportflow/internal/runtime/request"
	"github.com/drblury/reportflow/internal/runtime/validation"
	"github.com/drblury/reportflow/transport"
)

// ServiceDependencies holds optional collaborators. Nil fields are built from
// the configuration.
type ServiceDependencies struct {
	// Registry resolves conf.Broker; nil means transport.DefaultRegistry.
	Registry *transport.Registry
	// Transport skips the registry when its Publisher is set.
	Transport transport.Transport

	Products  report.ProductSource
	Sink      report.ArtifactSink
	Scheduler report.Scheduler
	Fallback  emitter.FallbackSink

	// Registerer and Gatherer back the metrics; nil means the prometheus
	// defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Clock    request.Clock
	Hostname string
}

// Service owns the publishing pipeline and the HTTP server in front of it.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger
	Server *httpapi.Server

	broker  *broker.Publisher
	emitter *emitter.Emitter
	pool    *pgxpool.Pool
}

// NewService wires every component for conf. The returned Service owns the
// broker session and, when it opened one, the database pool.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		log = loggingpkg.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = request.SystemClock
	}
	if deps.Registry == nil {
		deps.Registry = transport.DefaultRegistry
	}
	log.Info("Creating report service", loggingpkg.LogFields{
		"broker": conf.Broker,
		"config": conf.String(),
	})

	m, gatherer, err := newMetrics(conf, deps)
	if err != nil {
		return nil, err
	}

	pub := deps.Transport.Publisher
	if pub == nil {
		tr, err := deps.Registry.Build(ctx, conf, transport.RolePublish, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, err
		}
		pub = tr.Publisher
	}
	if caps := deps.Registry.Capabilities(conf.Broker); !caps.PreservesKeyOrder() {
		log.Warn("Broker does not preserve per-request record order", loggingpkg.LogFields{"broker": conf.Broker})
	}

	s := &Service{Conf: conf, Logger: log}

	s.broker, err = broker.New(pub, broker.Options{
		Source:      conf.ServiceName,
		MaxInFlight: conf.PublishMaxInFlight,
		Timeout:     conf.PublishTimeout,
		Logger:      log,
		Metrics:     m,
	})
	if err != nil {
		_ = pub.Close()
		return nil, err
	}

	s.emitter, err = emitter.New(s.broker, emitter.Options{
		Topics:          broker.TopicsFromConfig(conf),
		Fallback:        deps.Fallback,
		Clock:           deps.Clock,
		Logger:          log,
		Metrics:         m,
		Workers:         conf.EmitterWorkers,
		QueueSize:       conf.EmitterQueueSize,
		AwaitCompletion: conf.RequestOutcomeAwaited,
	})
	if err != nil {
		_ = s.broker.Close(ctx)
		return nil, err
	}

	enricher := enrich.New(enrich.Identity{
		Service: conf.ServiceName,
		Host:    hostname(deps.Hostname),
	}, deps.Clock)

	orch, err := orchestrator.New(orchestrator.Options{
		Emitter:   s.emitter,
		Validator: validation.Default(ids.NewCorrelationID),
		Enricher:  enricher,
		Clock:     deps.Clock,
		Hooks:     orchestrator.LoggingHooks(log).Merge(orchestrator.MetricsHooks(m)),
	})
	if err != nil {
		s.closePipeline(ctx)
		return nil, err
	}

	reports, err := s.newReportService(ctx, deps)
	if err != nil {
		s.closePipeline(ctx)
		return nil, err
	}

	s.Server = httpapi.NewServer(httpapi.ServerOptions{
		Correlation: httpapi.CorrelationConfig{
			Identity: enricher.Identity(),
			Emitter:  s.emitter,
			Clock:    deps.Clock,
		},
		Reports:  httpapi.NewReportHandler(orch.WithEnricher(enricher.ForEndpoint(httpapi.RouteTopProducts)), reports),
		Logger:   log,
		Metrics:  m,
		Gatherer: gatherer,
	})
	return s, nil
}

func newMetrics(conf *configpkg.Config, deps ServiceDependencies) (*metrics.Metrics, prometheus.Gatherer, error) {
	if !conf.MetricsEnabled {
		return nil, nil, nil
	}
	m := metrics.New(deps.Registerer)
	if err := m.Register(); err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return m, gatherer, nil
}

func (s *Service) newReportService(ctx context.Context, deps ServiceDependencies) (*report.Service, error) {
	conf := s.Conf
	products := deps.Products
	if products == nil {
		if conf.DatabaseURL == "" {
			return nil, errors.New("report: database URL is required")
		}
		pool, err := report.Connect(ctx, conf.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		products = report.NewRepository(pool)
	}

	sink := deps.Sink
	if sink == nil {
		if conf.ArtifactSinkURL == "" {
			return nil, errors.New("report: artifact sink URL is required")
		}
		sink = report.NewHTTPArtifactSink(conf.ArtifactSinkURL, nil, conf.DownstreamTimeout)
	}

	scheduler := deps.Scheduler
	if scheduler == nil {
		if conf.SchedulerBaseURL == "" {
			return nil, errors.New("report: scheduler base URL is required")
		}
		scheduler = report.NewHTTPScheduler(conf.SchedulerBaseURL, nil, conf.DownstreamTimeout)
	}

	return report.NewService(report.Dependencies{
		Products:     products,
		Renderer:     report.TextRenderer{},
		Sink:         sink,
		Scheduler:    scheduler,
		Events:       s.emitter,
		Clock:        deps.Clock,
		DefaultLimit: conf.TopProductsLimit,
	})
}

// Start serves HTTP until ctx is cancelled, then shuts down.
func (s *Service) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Server.Start(s.Conf.HTTPAddress)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Conf.PublishShutdownGrace)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the HTTP server, drains the emitter, then flushes and closes
// the broker session. Errors from every stage are joined.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if s.Server != nil {
		if err := s.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	errs = append(errs, s.closePipeline(ctx)...)
	if err := errors.Join(errs...); err != nil {
		s.Logger.Error("Shutdown incomplete", err, nil)
		return err
	}
	s.Logger.Info("Report service stopped", nil)
	return nil
}

func (s *Service) closePipeline(ctx context.Context) []error {
	var errs []error
	if s.emitter != nil {
		if err := s.emitter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("emitter: %w", err))
		}
	}
	if s.broker != nil {
		if err := s.broker.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("broker: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errs
}

func hostname(override string) string {
	if override != "" {
		return override
	}
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reportflow/internal/report"
	"github.com/drblury/reportflow/internal/runtime/enrich"
	"github.com/drblury/reportflow/internal/runtime/jsoncodec"
	"github.com/drblury/reportflow/internal/runtime/metrics"
	"github.com/drblury/reportflow/internal/runtime/orchestrator"
	"github.com/drblury/reportflow/internal/runtime/records"
	"github.com/drblury/reportflow/internal/runtime/request"
	"github.com/drblury/reportflow/internal/runtime/validation"
)

var identity = enrich.Identity{Service: "Report Server", Host: "srv-1"}

type recordingEmitter struct {
	mu          sync.Mutex
	completions []*records.RequestOutcome
	events      []string
	errors      int
}

func (e *recordingEmitter) LogCompletion(_ context.Context, rec *records.RequestOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completions = append(e.completions, rec)
}

func (e *recordingEmitter) LogRequestOutcome(context.Context, *request.Request, bool, string, string) {}

func (e *recordingEmitter) LogEvent(_ context.Context, _ *request.Request, name string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, name)
}

func (e *recordingEmitter) LogError(context.Context, *request.Request, string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}

func (e *recordingEmitter) outcomes() []*records.RequestOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*records.RequestOutcome(nil), e.completions...)
}

func newEcho(em CompletionEmitter, newID func() string, h echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.JSONSerializer = Serializer{}
	e.Use(Correlation(CorrelationConfig{Identity: identity, Emitter: em, NewID: newID}))
	e.Any("/api/probe", h)
	return e
}

func serve(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCorrelationGeneratesAndEchoesID(t *testing.T) {
	em := &recordingEmitter{}
	var seen, stamped string
	e := newEcho(em, func() string { return "gen-1" }, func(c echo.Context) error {
		seen, _ = request.CorrelationIDFromContext(c.Request().Context())
		stamped = c.Request().Header.Get(HeaderServerHost)
		return c.NoContent(http.StatusNoContent)
	})

	rec := serve(e, http.MethodGet, "/api/probe", "", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "gen-1", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "Report Server", rec.Header().Get(HeaderService))
	assert.Equal(t, "srv-1", rec.Header().Get(HeaderServerHost))
	assert.Equal(t, "gen-1", seen)
	assert.Equal(t, "srv-1", stamped)

	outs := em.outcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, records.StatusValid, outs[0].Status)
	assert.Equal(t, "gen-1", outs[0].CorrelationID)
	assert.Equal(t, "/api/probe", outs[0].Endpoint)
	require.NotNil(t, outs[0].IsSuccess)
	assert.True(t, *outs[0].IsSuccess)
}

func TestCorrelationKeepsIncomingID(t *testing.T) {
	em := &recordingEmitter{}
	e := newEcho(em, func() string { return "unused" }, func(c echo.Context) error {
		return c.String(http.StatusOK, CorrelationID(c))
	})

	rec := serve(e, http.MethodGet, "/api/probe", "", map[string]string{HeaderCorrelationID: "from-client"})

	assert.Equal(t, "from-client", rec.Body.String())
	assert.Equal(t, "from-client", rec.Header().Get(HeaderCorrelationID))
}

func TestCorrelationBlockedOnClientError(t *testing.T) {
	em := &recordingEmitter{}
	e := newEcho(em, nil, func(c echo.Context) error {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"status": "error"})
	})

	serve(e, http.MethodGet, "/api/probe", "", nil)

	outs := em.outcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, records.StatusBlocked, outs[0].Status)
	assert.Equal(t, records.LevelWarning, outs[0].Level)
}

func TestCorrelationRecordsEscapingError(t *testing.T) {
	em := &recordingEmitter{}
	boom := errors.New("downstream exploded")
	var returned error

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			returned = next(c)
			return returned
		}
	})
	e.Use(Correlation(CorrelationConfig{Identity: identity, Emitter: em}))
	e.GET("/api/probe", func(echo.Context) error { return boom })

	rec := serve(e, http.MethodGet, "/api/probe", "", nil)

	assert.Same(t, boom, returned)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
	outs := em.outcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, records.StatusError, outs[0].Status)
	assert.Contains(t, outs[0].Reason, "downstream exploded")
}

func TestCorrelationRecordsPanicAndRepanics(t *testing.T) {
	em := &recordingEmitter{}
	e := newEcho(em, nil, func(echo.Context) error {
		panic("handler bug")
	})

	assert.Panics(t, func() {
		serve(e, http.MethodGet, "/api/probe", "", nil)
	})
	outs := em.outcomes()
	require.Len(t, outs, 1)
	assert.Equal(t, records.StatusError, outs[0].Status)
	assert.Contains(t, outs[0].Reason, "handler bug")
}

type stubReports struct {
	got *report.TopProductsRequest
}

func (s *stubReports) Operation(tr *report.TopProductsRequest) orchestrator.Operation {
	s.got = tr
	return func(context.Context, *request.Request) (any, error) {
		return report.Summary{Message: "done", ProductCount: 2}, nil
	}
}

func newServer(t *testing.T, em *recordingEmitter, reports *stubReports, reg *prometheus.Registry) *Server {
	t.Helper()
	orch, err := orchestrator.New(orchestrator.Options{
		Emitter:   em,
		Validator: validation.Default(func() string { return "validator-id" }),
		Enricher:  enrich.New(identity, nil).ForEndpoint(RouteTopProducts),
	})
	require.NoError(t, err)

	m := metrics.New(reg)
	require.NoError(t, m.Register())

	return NewServer(ServerOptions{
		Correlation: CorrelationConfig{Identity: identity, Emitter: em, NewID: func() string { return "header-id" }},
		Reports:     NewReportHandler(orch, reports),
		Metrics:     m,
		Gatherer:    reg,
	})
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) orchestrator.Result {
	t.Helper()
	var res orchestrator.Result
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func TestTopProductsEmptyRequestIsRejected(t *testing.T) {
	em := &recordingEmitter{}
	reports := &stubReports{}
	srv := newServer(t, em, reports, prometheus.NewRegistry())

	rec := serve(srv.Echo, http.MethodPost, RouteTopProducts, `{}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, validation.ReasonMissingRequired, res.Message)
	assert.Equal(t, "header-id", res.CorrelationID)
	assert.Contains(t, res.Detail, "validation started")
	assert.Equal(t, "header-id", rec.Header().Get(HeaderCorrelationID))
	assert.Empty(t, em.events, "operation must not start")
	assert.Zero(t, em.errors)

	outs := em.outcomes()
	require.Len(t, outs, 2)
	assert.Equal(t, records.StatusBlocked, outs[0].Status)
	assert.Equal(t, validation.ReasonMissingRequired, outs[0].Reason)
	assert.Equal(t, records.StatusBlocked, outs[1].Status)
}

func TestTopProductsMalformedBody(t *testing.T) {
	em := &recordingEmitter{}
	srv := newServer(t, em, &stubReports{}, prometheus.NewRegistry())

	rec := serve(srv.Echo, http.MethodPost, RouteTopProducts, `{"payload":`, map[string]string{HeaderCorrelationID: "client-id"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "client-id", res.CorrelationID)
	assert.Equal(t, "Invalid request parameters", res.Message)
}

func TestTopProductsSuccess(t *testing.T) {
	em := &recordingEmitter{}
	reports := &stubReports{}
	srv := newServer(t, em, reports, prometheus.NewRegistry())

	body := `{
		"correlationId": "body-id",
		"service": "Client",
		"endpoint": "/client",
		"timestamp": "2024-05-06T07:08:09Z",
		"success": true,
		"executionTimeMs": 0,
		"serverHost": "client-host",
		"payload": {"limit": 2, "reportTitle": "Weekly"}
	}`
	rec := serve(srv.Echo, http.MethodPost, RouteTopProducts, body, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "body-id", res.CorrelationID)
	require.NotNil(t, reports.got)
	assert.Equal(t, 2, reports.got.Payload.Limit)
	assert.Equal(t, "Weekly", reports.got.Payload.ReportTitle)
	assert.Equal(t, RouteTopProducts, reports.got.Endpoint, "request should be enriched with the route")
	assert.Equal(t, []string{"GenerateTopProductsReportStarted", "GenerateTopProductsReportCompleted"}, em.events)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newServer(t, &recordingEmitter{}, &stubReports{}, reg)

	serve(srv.Echo, http.MethodPost, RouteTopProducts, `{}`, nil)

	health := serve(srv.Echo, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.NotEmpty(t, health.Header().Get(echo.HeaderContentType))
	assert.Empty(t, health.Header().Get(HeaderCorrelationID), "health checks bypass correlation")

	m := serve(srv.Echo, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), `reportflow_http_responses_total{code="400",route="/api/reports/top-products"} 1`)
}

func TestServerShutdown(t *testing.T) {
	srv := newServer(t, &recordingEmitter{}, &stubReports{}, prometheus.NewRegistry())
	errc := make(chan error, 1)
	go func() { errc <- srv.Start("127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

package emitter

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drblury/reportflow/internal/runtime/broker"
	"github.com/drblury/reportflow/internal/runtime/jsoncodec"
	"github.com/drblury/reportflow/internal/runtime/records"
	"github.com/drblury/reportflow/internal/runtime/request"
)

var testTopics = broker.Topics{Requests: "request-logs", Events: "event-logs", Errors: "error-logs"}

type published struct {
	topic string
	rec   records.Record
}

type recordingPublisher struct {
	mu     sync.Mutex
	fail   bool
	panics bool
	delay  time.Duration
	got    []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, rec records.Record) bool {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.panics {
		panic("broker client bug")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false
	}
	p.got = append(p.got, published{topic: topic, rec: rec})
	return true
}

func (p *recordingPublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

type recordingSink struct {
	mu      sync.Mutex
	reasons []string
	recs    []records.Record
}

func (s *recordingSink) Write(rec records.Record, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	s.recs = append(s.recs, rec)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func newTestEmitter(t *testing.T, pub Publisher, sink FallbackSink, opts Options) *Emitter {
	t.Helper()
	opts.Topics = testTopics
	opts.Fallback = sink
	opts.AwaitCompletion = true
	e, err := New(pub, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func testRequest(id string) *request.Request {
	return &request.Request{CorrelationID: id, Service: "Reports", Endpoint: "/api/reports/top-products"}
}

func TestRoutesEachKindToItsTopic(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{Workers: 1})
	ctx := context.Background()
	req := testRequest("corr-1")

	e.LogRequestOutcome(ctx, req, true, "request received", "")
	e.LogEvent(ctx, req, "GenerateReportStarted", nil)
	e.LogError(ctx, req, "boom", "trace")
	e.LogCompletion(ctx, records.NewRequestOutcome(time.Now(), req, records.StatusValid, "done", ""))

	got := pub.snapshot()
	want := []string{"request-logs", "event-logs", "error-logs", "request-logs"}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, topic := range want {
		if got[i].topic != topic {
			t.Fatalf("record %d went to %s, want %s", i, got[i].topic, topic)
		}
		if got[i].rec.Head().CorrelationID != "corr-1" {
			t.Fatalf("record %d lost correlation id", i)
		}
	}
}

func TestPublishFailureNeverReachesCaller(t *testing.T) {
	sink := &recordingSink{}
	e := newTestEmitter(t, &recordingPublisher{fail: true}, sink, Options{})
	ctx := context.Background()
	req := testRequest("corr-2")

	e.LogEvent(ctx, req, "Started", nil)
	e.LogError(ctx, req, "boom", "")
	e.LogRequestOutcome(ctx, req, false, "missing required fields", "")
	e.LogCompletion(ctx, records.NewRequestOutcome(time.Now(), req, records.StatusError, "boom", ""))

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.count() != 4 {
		t.Fatalf("expected 4 fallback records, got %d", sink.count())
	}
	for _, reason := range sink.reasons {
		if reason != ReasonPublishFailed {
			t.Fatalf("unexpected reason %q", reason)
		}
	}
}

func TestPublisherPanicIsRecovered(t *testing.T) {
	sink := &recordingSink{}
	e := newTestEmitter(t, &recordingPublisher{panics: true}, sink, Options{})

	e.LogCompletion(context.Background(), records.NewRequestOutcome(time.Now(), testRequest("corr-3"), records.StatusValid, "ok", ""))

	if sink.count() != 1 || sink.reasons[0] != ReasonPanic {
		t.Fatalf("expected panic fallback, got %v", sink.reasons)
	}
}

func TestCompletionIsAwaited(t *testing.T) {
	pub := &recordingPublisher{delay: 30 * time.Millisecond}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{})

	e.LogCompletion(context.Background(), records.NewRequestOutcome(time.Now(), testRequest("corr-4"), records.StatusValid, "ok", ""))

	if len(pub.snapshot()) != 1 {
		t.Fatal("completion record should be published before LogCompletion returns")
	}
}

func TestEventsDoNotBlockCaller(t *testing.T) {
	pub := &recordingPublisher{delay: 200 * time.Millisecond}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{})

	started := time.Now()
	e.LogEvent(context.Background(), testRequest("corr-5"), "Started", nil)
	if elapsed := time.Since(started); elapsed > 100*time.Millisecond {
		t.Fatalf("LogEvent blocked for %v", elapsed)
	}
}

func TestPerKeyOrderAcrossAsyncAndAwaited(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{Workers: 4})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		req := testRequest(id)
		e.LogEvent(ctx, req, "Started", nil)
		e.LogEvent(ctx, req, "Completed", nil)
		e.LogCompletion(ctx, records.NewRequestOutcome(time.Now(), req, records.StatusValid, "done", ""))
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	order := map[string][]string{}
	for _, p := range pub.snapshot() {
		h := p.rec.Head()
		label := string(h.Type)
		if ev, ok := p.rec.(*records.Event); ok {
			label = ev.EventName
		}
		order[h.CorrelationID] = append(order[h.CorrelationID], label)
	}
	for id, labels := range order {
		if strings.Join(labels, ",") != "Started,Completed,RequestOutcome" {
			t.Fatalf("records for %s out of order: %v", id, labels)
		}
	}
}

func TestFullQueueFallsBackWithoutBlocking(t *testing.T) {
	pub := &recordingPublisher{delay: 100 * time.Millisecond}
	sink := &recordingSink{}
	e := newTestEmitter(t, pub, sink, Options{Workers: 1, QueueSize: 1})

	for i := 0; i < 5; i++ {
		e.LogEvent(context.Background(), testRequest("same"), "Burst", nil)
	}

	if sink.count() == 0 {
		t.Fatal("expected overflow records in the fallback sink")
	}
	for _, reason := range sink.reasons {
		if reason != ReasonQueueFull {
			t.Fatalf("unexpected reason %q", reason)
		}
	}
}

func TestEmitAfterCloseGoesToFallback(t *testing.T) {
	sink := &recordingSink{}
	e := newTestEmitter(t, &recordingPublisher{}, sink, Options{})
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e.LogEvent(context.Background(), testRequest("late"), "Late", nil)
	e.LogCompletion(context.Background(), records.NewRequestOutcome(time.Now(), testRequest("late"), records.StatusValid, "", ""))

	if sink.count() != 2 || sink.reasons[0] != ReasonClosed {
		t.Fatalf("expected closed fallbacks, got %v", sink.reasons)
	}
}

func TestCloseAbandonsBacklogAfterGrace(t *testing.T) {
	pub := &recordingPublisher{delay: 50 * time.Millisecond}
	sink := &recordingSink{}
	e := newTestEmitter(t, pub, sink, Options{Workers: 1, QueueSize: 16})

	for i := 0; i < 10; i++ {
		e.LogEvent(context.Background(), testRequest("backlog"), "Queued", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Close(ctx); err == nil {
		t.Fatal("expected drain error")
	}

	if len(pub.snapshot())+sink.count() != 10 {
		t.Fatalf("every record must be published or written locally: %d + %d", len(pub.snapshot()), sink.count())
	}
	for _, reason := range sink.reasons {
		if reason != ReasonShutdown {
			t.Fatalf("unexpected reason %q", reason)
		}
	}
}

func TestMissingCorrelationIDIsFilledFromContext(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{})

	ctx := request.WithCorrelationID(context.Background(), "from-header")
	e.LogCompletion(ctx, records.NewRequestOutcome(time.Now(), nil, records.StatusError, "boom", ""))
	e.LogCompletion(context.Background(), records.NewRequestOutcome(time.Now(), nil, records.StatusError, "boom", ""))

	got := pub.snapshot()
	if got[0].rec.Head().CorrelationID != "from-header" {
		t.Fatalf("expected id from context, got %q", got[0].rec.Head().CorrelationID)
	}
	if got[1].rec.Head().CorrelationID == "" {
		t.Fatal("expected a generated id")
	}
}

func TestWarningEventLevel(t *testing.T) {
	pub := &recordingPublisher{}
	e := newTestEmitter(t, pub, &recordingSink{}, Options{})

	e.LogWarning(context.Background(), testRequest("w"), "NotificationSchedulingFailed", map[string]any{"error": "503"})
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := pub.snapshot()
	if len(got) != 1 || got[0].rec.Head().Level != records.LevelWarning || got[0].topic != "event-logs" {
		t.Fatalf("unexpected warning record %#v", got)
	}
}

func TestZerologSinkWritesRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewZerologSink(buf)
	sink.Write(records.NewError(time.Now(), testRequest("z"), "boom", ""), ReasonPublishFailed)

	var line map[string]any
	if err := jsoncodec.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode sink output: %v (%s)", err, buf.String())
	}
	if line["level"] != "error" || line["reason"] != ReasonPublishFailed || line["correlationId"] != "z" {
		t.Fatalf("unexpected sink line %#v", line)
	}
	rec, ok := line["record"].(map[string]any)
	if !ok || rec["errorMessage"] != "boom" {
		t.Fatalf("expected embedded record, got %#v", line["record"])
	}
}

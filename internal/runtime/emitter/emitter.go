// Package emitter builds structured records and hands them to the broker
// without ever surfacing a publish failure to its caller. Records are
// dispatched through shards keyed by correlation id; each shard has one
// worker, so records for the same request leave in submission order.
package emitter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/drblury/reportflow/internal/runtime/broker"
	"github.com/drblury/reportflow/internal/runtime/config"
	errspkg "github.com/drblury/reportflow/internal/runtime/errors"
	"github.com/drblury/reportflow/internal/runtime/ids"
	"github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metrics"
	"github.com/drblury/reportflow/internal/runtime/records"
	"github.com/drblury/reportflow/internal/runtime/request"
)

// Fallback reasons, also used as metric labels.
const (
	ReasonPublishFailed = "publish_failed"
	ReasonPanic         = "publisher_panic"
	ReasonQueueFull     = "queue_full"
	ReasonClosed        = "closed"
	ReasonShutdown      = "shutdown"
)

// Publisher is the broker contract the emitter depends on.
type Publisher interface {
	Publish(ctx context.Context, topic string, rec records.Record) bool
}

// Options tunes an Emitter. Zero values fall back to the config defaults.
type Options struct {
	Topics   broker.Topics
	Fallback FallbackSink
	Clock    request.Clock
	Logger   logging.ServiceLogger
	Metrics  *metrics.Metrics
	// Workers is the number of shards, each drained by one goroutine.
	Workers int
	// QueueSize is the total backlog across all shards.
	QueueSize int
	// AwaitCompletion makes LogCompletion wait for delivery.
	AwaitCompletion bool
}

type job struct {
	ctx  context.Context
	rec  records.Record
	done chan struct{}
}

// Emitter is safe for concurrent use.
type Emitter struct {
	pub      Publisher
	topics   broker.Topics
	fallback FallbackSink
	clock    request.Clock
	logger   logging.ServiceLogger
	metrics  *metrics.Metrics
	await    bool

	shards  []chan job
	mu      sync.RWMutex
	closed  bool
	abandon atomic.Bool
	wg      sync.WaitGroup
}

// New starts the shard workers. Close must be called to stop them.
func New(pub Publisher, opts Options) (*Emitter, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultEmitterWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = config.DefaultEmitterQueue
	}
	if opts.Clock == nil {
		opts.Clock = request.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Fallback == nil {
		opts.Fallback = NewConsoleSink()
	}

	perShard := opts.QueueSize / opts.Workers
	if perShard < 1 {
		perShard = 1
	}

	e := &Emitter{
		pub:      pub,
		topics:   opts.Topics,
		fallback: opts.Fallback,
		clock:    opts.Clock,
		logger:   opts.Logger.With(logging.LogFields{"component": "emitter"}),
		metrics:  opts.Metrics,
		await:    opts.AwaitCompletion,
		shards:   make([]chan job, opts.Workers),
	}
	for i := range e.shards {
		e.shards[i] = make(chan job, perShard)
		e.wg.Add(1)
		go e.run(i, e.shards[i])
	}
	return e, nil
}

// LogRequestOutcome records the verdict on req without waiting for delivery.
func (e *Emitter) LogRequestOutcome(ctx context.Context, req *request.Request, valid bool, reason, flow string) {
	status := records.StatusValid
	if !valid {
		status = records.StatusBlocked
	}
	e.dispatch(ctx, records.NewRequestOutcome(e.clock(), req, status, reason, flow), false)
}

// LogCompletion records the final outcome of a request. When awaiting is
// enabled it returns once the record is published or diverted to the
// fallback, or when ctx ends.
func (e *Emitter) LogCompletion(ctx context.Context, rec *records.RequestOutcome) {
	if rec == nil {
		return
	}
	e.dispatch(ctx, rec, e.await)
}

// LogEvent records a named event without waiting for delivery.
func (e *Emitter) LogEvent(ctx context.Context, req *request.Request, name string, data map[string]any) {
	e.dispatch(ctx, records.NewEvent(e.clock(), req, name, data), false)
}

// LogWarning records a named event at Warning level.
func (e *Emitter) LogWarning(ctx context.Context, req *request.Request, name string, data map[string]any) {
	ev := records.NewEvent(e.clock(), req, name, data)
	ev.Level = records.LevelWarning
	e.dispatch(ctx, ev, false)
}

// LogError records a failure without waiting for delivery.
func (e *Emitter) LogError(ctx context.Context, req *request.Request, message, stack string) {
	e.dispatch(ctx, records.NewError(e.clock(), req, message, stack), false)
}

// Emit dispatches a prebuilt record without waiting for delivery.
func (e *Emitter) Emit(ctx context.Context, rec records.Record) {
	if rec == nil {
		return
	}
	e.dispatch(ctx, rec, false)
}

func (e *Emitter) dispatch(ctx context.Context, rec records.Record, wait bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	id, ok := request.CorrelationIDFromContext(ctx)
	if !ok {
		id = ids.NewCorrelationID()
	}
	records.EnsureCorrelationID(rec, id)

	j := job{ctx: context.WithoutCancel(ctx), rec: rec}
	if wait {
		j.done = make(chan struct{})
	}

	if !e.enqueue(j) {
		return
	}
	if wait {
		select {
		case <-j.done:
		case <-ctx.Done():
		}
	}
}

func (e *Emitter) enqueue(j job) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.toFallback(j.rec, ReasonClosed)
		return false
	}
	shard := e.shardFor(j.rec.Head().CorrelationID)
	select {
	case e.shards[shard] <- j:
		e.metrics.SetQueueDepth(shard, len(e.shards[shard]))
		return true
	default:
		e.logger.Warn("emitter shard full; writing record locally", logging.LogFields{
			"shard":          shard,
			"correlation_id": j.rec.Head().CorrelationID,
		})
		e.toFallback(j.rec, ReasonQueueFull)
		return false
	}
}

func (e *Emitter) shardFor(correlationID string) int {
	return int(xxhash.Sum64String(correlationID) % uint64(len(e.shards)))
}

func (e *Emitter) run(shard int, jobs <-chan job) {
	defer e.wg.Done()
	for j := range jobs {
		e.metrics.SetQueueDepth(shard, len(jobs))
		e.deliver(j)
	}
}

func (e *Emitter) deliver(j job) {
	defer func() {
		if j.done != nil {
			close(j.done)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("publisher panicked", fmt.Errorf("%v", r), logging.LogFields{"correlation_id": j.rec.Head().CorrelationID})
			e.toFallback(j.rec, ReasonPanic)
		}
	}()

	if e.abandon.Load() {
		e.toFallback(j.rec, ReasonShutdown)
		return
	}
	topic := e.topics.For(j.rec.Head().Type)
	if !e.pub.Publish(j.ctx, topic, j.rec) {
		e.toFallback(j.rec, ReasonPublishFailed)
	}
}

func (e *Emitter) toFallback(rec records.Record, reason string) {
	e.metrics.RecordFallback(string(rec.Head().Type), reason)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("fallback sink panicked", fmt.Errorf("%v", r), nil)
		}
	}()
	e.fallback.Write(rec, reason)
}

// Close stops intake and drains queued records until ctx ends. Records still
// queued after that go to the fallback sink.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, shard := range e.shards {
		close(shard)
	}
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		e.abandon.Store(true)
		<-drained
		return fmt.Errorf("emitter: drain interrupted, remaining records written locally: %w", ctx.Err())
	}
}

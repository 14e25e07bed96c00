// Package broker publishes structured records to the message broker. It is
// the only owner of the long-lived publisher session: it caps concurrent
// unacknowledged publishes, bounds every call with a timeout and converts
// every failure into a false result.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/drblury/reportflow/internal/runtime/config"
	errspkg "github.com/drblury/reportflow/internal/runtime/errors"
	"github.com/drblury/reportflow/internal/runtime/ids"
	"github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metadata"
	"github.com/drblury/reportflow/internal/runtime/metrics"
	"github.com/drblury/reportflow/internal/runtime/records"
)

// Topics routes each record kind to its topic.
type Topics struct {
	Requests string
	Events   string
	Errors   string
}

// TopicsFromConfig reads the three record topics from conf.
func TopicsFromConfig(conf *config.Config) Topics {
	return Topics{Requests: conf.RequestTopic, Events: conf.EventTopic, Errors: conf.ErrorTopic}
}

// For returns the topic for kind, or "" for an unknown kind.
func (t Topics) For(kind records.Kind) string {
	switch kind {
	case records.KindRequestOutcome:
		return t.Requests
	case records.KindEvent:
		return t.Events
	case records.KindError:
		return t.Errors
	default:
		return ""
	}
}

// Names lists the configured topics in request, event, error order.
func (t Topics) Names() []string {
	return []string{t.Requests, t.Events, t.Errors}
}

// Options tunes a Publisher. Zero values fall back to the config defaults.
type Options struct {
	// Source is used for the Source header when a record has no service.
	Source      string
	MaxInFlight int
	Timeout     time.Duration
	Logger      logging.ServiceLogger
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = config.DefaultMaxInFlight
	}
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultPublishTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("github.com/drblury/reportflow/broker")
	}
	return o
}

// Publisher publishes records over a watermill publisher.
type Publisher struct {
	pub         message.Publisher
	source      string
	timeout     time.Duration
	maxInFlight int64
	sem         *semaphore.Weighted
	inFlight    atomic.Int64
	closed      atomic.Bool
	logger      logging.ServiceLogger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// New wraps pub. The returned Publisher owns pub and closes it on Close.
func New(pub message.Publisher, opts Options) (*Publisher, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	opts = opts.withDefaults()
	return &Publisher{
		pub:         pub,
		source:      opts.Source,
		timeout:     opts.Timeout,
		maxInFlight: int64(opts.MaxInFlight),
		sem:         semaphore.NewWeighted(int64(opts.MaxInFlight)),
		logger:      opts.Logger.With(logging.LogFields{"component": "broker"}),
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
	}, nil
}

// InFlight returns the number of publishes awaiting acknowledgement.
func (p *Publisher) InFlight() int {
	return int(p.inFlight.Load())
}

// Publish sends rec to topic and reports whether the broker acknowledged it
// within the timeout. It never panics and never returns an error; callers
// route false to their fallback.
func (p *Publisher) Publish(ctx context.Context, topic string, rec records.Record) (ok bool) {
	started := time.Now()
	result := metrics.ResultFailed
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("publish panicked", fmt.Errorf("%v", r), logging.LogFields{"topic": topic})
			ok = false
			result = metrics.ResultPanic
		}
		p.metrics.ObservePublish(topic, result, time.Since(started))
	}()

	if rec == nil {
		p.logger.Error("refusing to publish nil record", nil, logging.LogFields{"topic": topic})
		return false
	}
	fields := logging.LogFields{"topic": topic, "correlation_id": rec.Head().CorrelationID, "record_type": string(rec.Head().Type)}
	if topic == "" {
		p.logger.Error("refusing to publish record", errspkg.ErrTopicRequired, fields)
		return false
	}
	if p.closed.Load() {
		result = metrics.ResultRejected
		p.logger.Debug("publisher closed; record not sent", fields)
		return false
	}

	payload, err := records.Encode(rec)
	if err != nil {
		p.logger.Error("encode record", err, fields)
		return false
	}
	msg := message.NewMessage(ids.MessageID(), payload)
	msg.Metadata = metadata.ToWatermill(records.Headers(rec, p.source))

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "broker.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.message.id", msg.UUID),
			attribute.String("reportflow.correlation_id", rec.Head().CorrelationID),
		),
	)
	defer span.End()
	msg.SetContext(ctx)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		result = metrics.ResultTimeout
		p.fail(span, errspkg.ErrPublishTimeout, "in-flight cap not released before timeout", fields)
		return false
	}

	p.inFlight.Add(1)
	p.metrics.InFlightAdd(1)
	done := make(chan error, 1)
	go func() {
		defer func() {
			p.inFlight.Add(-1)
			p.metrics.InFlightAdd(-1)
			p.sem.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("publisher panicked: %v", r)
			}
		}()
		done <- p.pub.Publish(topic, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.fail(span, err, "broker rejected record", fields)
			return false
		}
		result = metrics.ResultPublished
		fields["message_uuid"] = msg.UUID
		p.logger.Trace("record published", fields)
		return true
	case <-ctx.Done():
		result = metrics.ResultTimeout
		p.fail(span, errspkg.ErrPublishTimeout, "broker did not acknowledge before timeout", fields)
		return false
	}
}

func (p *Publisher) fail(span trace.Span, err error, msg string, fields logging.LogFields) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	p.logger.Error(msg, err, fields)
}

// Close stops accepting records, waits up to ctx's deadline for in-flight
// publishes to be acknowledged, then closes the underlying publisher.
func (p *Publisher) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	var drainErr error
	if err := p.sem.Acquire(ctx, p.maxInFlight); err != nil {
		drainErr = fmt.Errorf("broker: %d publishes still in flight at shutdown: %w", p.InFlight(), err)
		p.logger.Error("shutdown grace elapsed before drain", drainErr, nil)
	} else {
		p.sem.Release(p.maxInFlight)
	}

	closeErr := p.pub.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("broker: close publisher: %w", closeErr)
	}
	return errors.Join(drainErr, closeErr)
}

package runtime

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	loggingpkg "github.com/drblury/reportflow/internal/runtime/logging"
	"github.com/drblury/reportflow/internal/runtime/metadata"
	"github.com/drblury/reportflow/internal/runtime/records"
)

// RecordHandler receives every decoded record read by a Tail.
type RecordHandler func(topic string, rec records.Record) error

// TailOptions configures a Tail. Topics and Handle are required.
type TailOptions struct {
	Topics []string
	Handle RecordHandler
	Logger loggingpkg.ServiceLogger
	// Registerer enables watermill router metrics when set.
	Registerer prometheus.Registerer
}

// Tail consumes the record topics through a watermill router.
type Tail struct {
	router *message.Router
	logger loggingpkg.ServiceLogger
}

// NewTail registers one consumer handler per topic on sub.
func NewTail(sub message.Subscriber, opts TailOptions) (*Tail, error) {
	if sub == nil {
		return nil, errors.New("tail: subscriber is required")
	}
	if opts.Handle == nil {
		return nil, errors.New("tail: record handler is required")
	}
	if len(opts.Topics) == 0 {
		return nil, errors.New("tail: at least one topic is required")
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.Nop()
	}
	log := opts.Logger.With(loggingpkg.LogFields{"component": "tail"})

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(middleware.Recoverer, logMessages(log))

	if opts.Registerer != nil {
		builder := metrics.NewPrometheusMetricsBuilder(opts.Registerer, "reportflow", "tail")
		builder.AddPrometheusRouterMetrics(router)
	}

	for _, topic := range opts.Topics {
		router.AddNoPublisherHandler("tail_"+topic, topic, sub, decodeRecord(topic, opts.Handle, log))
	}
	return &Tail{router: router, logger: log}, nil
}

// Run blocks until ctx is cancelled or the router fails.
func (t *Tail) Run(ctx context.Context) error {
	return t.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (t *Tail) Running() chan struct{} {
	return t.router.Running()
}

func (t *Tail) Close() error {
	return t.router.Close()
}

// decodeRecord acks payloads that are not records so a foreign message on a
// shared topic does not block the consumer.
func decodeRecord(topic string, handle RecordHandler, log loggingpkg.ServiceLogger) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		rec, err := records.Decode(msg.Payload)
		if err != nil {
			log.Warn("Skipping undecodable message", loggingpkg.LogFields{
				"topic":        topic,
				"message_uuid": msg.UUID,
				"error":        err.Error(),
			})
			return nil
		}
		return handle(topic, rec)
	}
}

func logMessages(log loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			log.Trace("Processing message", loggingpkg.LogFields{
				"message_uuid":   msg.UUID,
				"correlation_id": msg.Metadata.Get(metadata.KeyCorrelationID),
				"record_type":    msg.Metadata.Get(metadata.KeyRecordType),
			})
			return h(msg)
		}
	}
}

// RecordPrinter writes one line per record to w. Pretty selects zerolog's
// console layout; otherwise each line is JSON.
func RecordPrinter(w io.Writer, pretty bool) RecordHandler {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	out := zerolog.New(w)
	var mu sync.Mutex

	return func(topic string, rec records.Record) error {
		h := rec.Head()
		mu.Lock()
		defer mu.Unlock()

		ev := out.WithLevel(levelOf(h.Level)).
			Time("timestamp", h.Timestamp).
			Str("topic", topic).
			Str("type", string(h.Type)).
			Str("correlationId", h.CorrelationID).
			Str("service", h.Service).
			Str("endpoint", h.Endpoint)

		switch r := rec.(type) {
		case *records.RequestOutcome:
			ev = ev.Str("status", string(r.Status)).
				Str("reason", r.Reason).
				Int64("executionTimeMs", r.ExecutionTimeMs)
			if r.ValidationFlow != "" {
				ev = ev.Str("validationFlow", r.ValidationFlow)
			}
			ev.Msg(string(r.Status))
		case *records.Event:
			ev.Interface("eventData", r.EventData).Msg(r.EventName)
		case *records.Error:
			if r.StackTrace != "" {
				ev = ev.Str("stackTrace", r.StackTrace)
			}
			ev.Msg(r.ErrorMessage)
		default:
			ev.Send()
		}
		return nil
	}
}

func levelOf(l records.Level) zerolog.Level {
	switch l {
	case records.LevelWarning:
		return zerolog.WarnLevel
	case records.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

package emitter

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/drblury/reportflow/internal/runtime/records"
)

// FallbackSink receives records the broker could not take. Implementations
// must not block for long and must be safe for concurrent use.
type FallbackSink interface {
	Write(rec records.Record, reason string)
}

// ZerologSink writes undelivered records as JSON lines, one per record, with
// the full record embedded under "record".
type ZerologSink struct {
	mu  sync.Mutex
	log zerolog.Logger
}

// NewZerologSink writes to w.
func NewZerologSink(w io.Writer) *ZerologSink {
	return &ZerologSink{log: zerolog.New(w).With().Timestamp().Str("component", "record-fallback").Logger()}
}

// NewConsoleSink writes to stderr.
func NewConsoleSink() *ZerologSink {
	return NewZerologSink(os.Stderr)
}

func (s *ZerologSink) Write(rec records.Record, reason string) {
	h := rec.Head()
	payload, err := records.Encode(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.log.WithLevel(zerologLevel(h.Level)).
		Str("reason", reason).
		Str("correlationId", h.CorrelationID).
		Str("recordType", string(h.Type))
	if err != nil {
		ev.Err(err).Msg("record could not be encoded")
		return
	}
	ev.RawJSON("record", payload).Msg("record not delivered to broker")
}

func zerologLevel(level records.Level) zerolog.Level {
	switch level {
	case records.LevelWarning:
		return zerolog.WarnLevel
	case records.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Package records defines the structured audit records published to the
// broker: request outcomes, events and errors. The set is closed; every
// record shares a Header and encodes with lower-camel field names.
package records

import (
	"fmt"
	"time"

	"github.com/drblury/reportflow/internal/runtime/jsoncodec"
	"github.com/drblury/reportflow/internal/runtime/metadata"
	"github.com/drblury/reportflow/internal/runtime/request"
)

// Kind discriminates the record variants on the wire.
type Kind string

const (
	KindRequestOutcome Kind = "RequestOutcome"
	KindEvent          Kind = "Event"
	KindError          Kind = "Error"
)

// Level is the severity carried in the LogLevel header.
type Level string

const (
	LevelInformation Level = "Information"
	LevelWarning     Level = "Warning"
	LevelError       Level = "Error"
)

// OutcomeStatus is the verdict recorded on a RequestOutcome.
type OutcomeStatus string

const (
	StatusValid   OutcomeStatus = "VALID"
	StatusBlocked OutcomeStatus = "BLOCKED"
	StatusError   OutcomeStatus = "ERROR"
)

// Header holds the fields common to every record. Timestamp is the capture
// time of the record, not the request submission time.
type Header struct {
	Type          Kind      `json:"type"`
	Level         Level     `json:"level"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
	Service       string    `json:"service"`
	Endpoint      string    `json:"endpoint"`
}

// Head returns the shared header.
func (h Header) Head() Header { return h }

// Record is implemented by *RequestOutcome, *Event and *Error only.
type Record interface {
	Head() Header
	setCorrelationID(id string)
	isRecord()
}

// RequestOutcome records the verdict on one request.
type RequestOutcome struct {
	Header
	Status          OutcomeStatus `json:"status"`
	IsValid         bool          `json:"isValid"`
	Reason          string        `json:"reason"`
	ValidationFlow  string        `json:"validationFlow"`
	ServerHost      string        `json:"serverHost"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
	IsSuccess       *bool         `json:"isSuccess"`
}

// Event records a named step with an arbitrary payload.
type Event struct {
	Header
	EventName string         `json:"eventName"`
	EventData map[string]any `json:"eventData"`
}

// Error records a failure with an optional trace.
type Error struct {
	Header
	ErrorMessage string `json:"errorMessage"`
	StackTrace   string `json:"stackTrace,omitempty"`
}

func (*RequestOutcome) isRecord() {}
func (*Event) isRecord()          {}
func (*Error) isRecord()          {}

func (r *RequestOutcome) setCorrelationID(id string) { r.CorrelationID = id }
func (e *Event) setCorrelationID(id string)          { e.CorrelationID = id }
func (e *Error) setCorrelationID(id string)          { e.CorrelationID = id }

// EnsureCorrelationID fills an empty correlation id on rec with id.
func EnsureCorrelationID(rec Record, id string) {
	if rec.Head().CorrelationID == "" {
		rec.setCorrelationID(id)
	}
}

func headerFor(kind Kind, level Level, at time.Time, req *request.Request) Header {
	h := Header{Type: kind, Level: level, Timestamp: at}
	if req != nil {
		h.CorrelationID = req.CorrelationID
		h.Service = req.Service
		h.Endpoint = req.Endpoint
	}
	return h
}

// LevelFor maps an outcome status onto its severity.
func LevelFor(status OutcomeStatus) Level {
	switch status {
	case StatusBlocked:
		return LevelWarning
	case StatusError:
		return LevelError
	default:
		return LevelInformation
	}
}

// NewRequestOutcome captures req's verdict at time at.
func NewRequestOutcome(at time.Time, req *request.Request, status OutcomeStatus, reason, flow string) *RequestOutcome {
	out := &RequestOutcome{
		Header:         headerFor(KindRequestOutcome, LevelFor(status), at, req),
		Status:         status,
		IsValid:        status == StatusValid,
		Reason:         reason,
		ValidationFlow: flow,
	}
	if req != nil {
		out.ServerHost = req.ServerHost
		out.ExecutionTimeMs = req.ExecutionTimeMs
		out.IsSuccess = req.Success
	}
	return out
}

// NewEvent captures a named event at Information level.
func NewEvent(at time.Time, req *request.Request, name string, data map[string]any) *Event {
	return &Event{
		Header:    headerFor(KindEvent, LevelInformation, at, req),
		EventName: name,
		EventData: data,
	}
}

// NewError captures a failure message and trace.
func NewError(at time.Time, req *request.Request, message, stack string) *Error {
	return &Error{
		Header:       headerFor(KindError, LevelError, at, req),
		ErrorMessage: message,
		StackTrace:   stack,
	}
}

// Encode serializes rec to its wire payload.
func Encode(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("records: nil record")
	}
	return jsoncodec.Marshal(rec)
}

// Decode parses a wire payload back into the variant named by its type field.
func Decode(data []byte) (Record, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := jsoncodec.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("records: decode header: %w", err)
	}

	var rec Record
	switch probe.Type {
	case KindRequestOutcome:
		rec = &RequestOutcome{}
	case KindEvent:
		rec = &Event{}
	case KindError:
		rec = &Error{}
	default:
		return nil, fmt.Errorf("records: unknown record type %q", probe.Type)
	}
	if err := jsoncodec.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("records: decode %s: %w", probe.Type, err)
	}
	return rec, nil
}

// Headers builds the broker headers for rec. Source is the record's service,
// or fallbackSource when the record has none.
func Headers(rec Record, fallbackSource string) metadata.Metadata {
	h := rec.Head()
	source := h.Service
	if source == "" {
		source = fallbackSource
	}
	return metadata.New(
		metadata.KeyCorrelationID, h.CorrelationID,
		metadata.KeyLogLevel, string(h.Level),
		metadata.KeySource, source,
		metadata.KeyRecordType, string(h.Type),
	)
}

// Package request holds the unit of work that travels through the pipeline.
package request

import (
	"context"
	"time"
)

// Request identifies one unit of work. It is created at the transport
// boundary, mutated in place by validation and enrichment, and treated as
// read-only once the operation receives it.
type Request struct {
	CorrelationID   string    `json:"correlationId"`
	Service         string    `json:"service"`
	Endpoint        string    `json:"endpoint"`
	Timestamp       time.Time `json:"timestamp"`
	Success         *bool     `json:"success"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	ServerHost      string    `json:"serverHost"`

	// Notification details forwarded to the job scheduler.
	EmailAddress     string `json:"emailAddress,omitempty"`
	MessageRecipient string `json:"messageRecipient,omitempty"`
	Subject          string `json:"subject,omitempty"`
	MessageBody      string `json:"messageBody,omitempty"`
	PlatformType     string `json:"platformType,omitempty"`
}

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the UTC wall clock.
func SystemClock() time.Time { return time.Now().UTC() }

// Bool returns a pointer to b, for the nullable success flag.
func Bool(b bool) *bool { return &b }

type correlationKey struct{}

// WithCorrelationID stores the boundary correlation id on ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the id stored by WithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

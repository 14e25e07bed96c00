// Package validation runs an ordered chain of rules against a request.
// Rules may repair the request (assign a missing correlation id) and every
// rule writes to a shared trail. The first failing rule ends the chain.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/drblury/reportflow/internal/runtime/ids"
	"github.com/drblury/reportflow/internal/runtime/request"
)

const (
	ReasonValid           = "request valid"
	ReasonNilRequest      = "request cannot be null"
	ReasonMissingRequired = "missing required fields"
	ReasonInvalidTraceID  = "invalid correlation id"
)

// Rule is a single named check. Validate may mutate req; the mutation is
// visible to every later rule and to the caller.
type Rule interface {
	ErrorMessage() string
	Validate(req *request.Request, trail *Trail) bool
}

// Outcome is the verdict of one validation pass.
type Outcome struct {
	Valid  bool
	Reason string
	Trail  string
}

// Trail accumulates human-readable notes for one validation pass.
type Trail struct {
	lines []string
}

// Addf appends one note.
func (t *Trail) Addf(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// Lines returns a copy of the notes in order.
func (t *Trail) Lines() []string {
	return append([]string(nil), t.lines...)
}

func (t *Trail) String() string {
	return strings.Join(t.lines, "\n")
}

// Chain holds rules in registration order.
type Chain struct {
	rules []Rule
}

// NewChain assembles a chain; rules run in the order given.
func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: append([]Rule(nil), rules...)}
}

// Default is the production chain: correlation id repair, then required fields.
func Default(newID func() string) *Chain {
	return NewChain(CorrelationIDRule{NewID: newID}, RequiredFieldsRule{})
}

// Validate runs the rules until one fails.
func (c *Chain) Validate(req *request.Request) Outcome {
	trail := &Trail{}
	trail.Addf("validation started")

	if req == nil {
		trail.Addf("error: %s", ReasonNilRequest)
		return Outcome{Reason: ReasonNilRequest, Trail: trail.String()}
	}

	for _, rule := range c.rules {
		if !rule.Validate(req, trail) {
			trail.Addf("validation failed: %s", rule.ErrorMessage())
			return Outcome{Reason: rule.ErrorMessage(), Trail: trail.String()}
		}
	}

	trail.Addf("validation completed")
	return Outcome{Valid: true, Reason: ReasonValid, Trail: trail.String()}
}

// CorrelationIDRule assigns a correlation id when the request has none. It
// repairs rather than rejects, so it always passes. NewID defaults to a
// random UUID.
type CorrelationIDRule struct {
	NewID func() string
}

func (CorrelationIDRule) ErrorMessage() string { return ReasonInvalidTraceID }

func (r CorrelationIDRule) Validate(req *request.Request, trail *Trail) bool {
	if strings.TrimSpace(req.CorrelationID) == "" {
		newID := r.NewID
		if newID == nil {
			newID = ids.NewCorrelationID
		}
		req.CorrelationID = newID()
		trail.Addf("correlation id generated: %s", req.CorrelationID)
		return true
	}
	trail.Addf("correlation id received: %s", req.CorrelationID)
	return true
}

// RequiredFieldsRule rejects requests missing any mandatory field. It never
// mutates the request.
type RequiredFieldsRule struct{}

func (RequiredFieldsRule) ErrorMessage() string { return ReasonMissingRequired }

func (RequiredFieldsRule) Validate(req *request.Request, trail *Trail) bool {
	missing := MissingFields(req)
	if len(missing) > 0 {
		trail.Addf("required fields missing or invalid: %s", strings.Join(missing, ", "))
		return false
	}
	trail.Addf("required fields present")
	return true
}

// MissingFields lists the mandatory fields req lacks, in declaration order.
func MissingFields(req *request.Request) []string {
	var missing []string
	if strings.TrimSpace(req.Service) == "" {
		missing = append(missing, "service")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if req.Timestamp.Equal(time.Time{}) {
		missing = append(missing, "timestamp")
	}
	if req.Success == nil {
		missing = append(missing, "success")
	}
	if req.ExecutionTimeMs < 0 {
		missing = append(missing, "executionTimeMs")
	}
	if strings.TrimSpace(req.ServerHost) == "" {
		missing = append(missing, "serverHost")
	}
	return missing
}

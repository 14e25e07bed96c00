package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/drblury/reportflow/internal/runtime/ids"
	"github.com/drblury/reportflow/internal/runtime/request"
)

func completeRequest() *request.Request {
	return &request.Request{
		CorrelationID: "given-id",
		Service:       "Reports",
		Endpoint:      "/api/reports/top-products",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Success:       request.Bool(true),
		ServerHost:    "client-host",
	}
}

// recordingRule remembers whether it ran and optionally mutates the request.
type recordingRule struct {
	name   string
	result bool
	ran    bool
	mutate func(*request.Request)
}

func (r *recordingRule) ErrorMessage() string { return r.name + " failed" }

func (r *recordingRule) Validate(req *request.Request, trail *Trail) bool {
	r.ran = true
	if r.mutate != nil {
		r.mutate(req)
	}
	trail.Addf("%s ran", r.name)
	return r.result
}

func TestMissingCorrelationIDIsGenerated(t *testing.T) {
	req := completeRequest()
	req.CorrelationID = ""

	out := Default(nil).Validate(req)

	if !out.Valid || out.Reason != ReasonValid {
		t.Fatalf("expected valid outcome, got %+v", out)
	}
	if !ids.IsWellFormed(req.CorrelationID) {
		t.Fatalf("expected generated well-formed id, got %q", req.CorrelationID)
	}
	if !strings.Contains(out.Trail, "correlation id generated: "+req.CorrelationID) {
		t.Fatalf("trail should record generation, got %q", out.Trail)
	}
}

func TestExistingCorrelationIDIsKept(t *testing.T) {
	req := completeRequest()
	out := Default(func() string { return "unused" }).Validate(req)

	if req.CorrelationID != "given-id" {
		t.Fatalf("expected id to be kept, got %q", req.CorrelationID)
	}
	if !strings.Contains(out.Trail, "correlation id received: given-id") {
		t.Fatalf("unexpected trail %q", out.Trail)
	}
}

func TestMissingRequiredFields(t *testing.T) {
	cases := map[string]func(*request.Request){
		"service":   func(r *request.Request) { r.Service = "" },
		"endpoint":  func(r *request.Request) { r.Endpoint = " " },
		"timestamp": func(r *request.Request) { r.Timestamp = time.Time{} },
		"success":   func(r *request.Request) { r.Success = nil },
		"duration":  func(r *request.Request) { r.ExecutionTimeMs = -1 },
		"host":      func(r *request.Request) { r.ServerHost = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := completeRequest()
			mutate(req)
			before := *req
			later := &recordingRule{name: "later", result: true, mutate: func(r *request.Request) { r.Service = "mutated" }}

			out := NewChain(CorrelationIDRule{}, RequiredFieldsRule{}, later).Validate(req)

			if out.Valid {
				t.Fatal("expected invalid outcome")
			}
			if out.Reason != ReasonMissingRequired {
				t.Fatalf("unexpected reason %q", out.Reason)
			}
			if !strings.Contains(out.Trail, "required fields missing") {
				t.Fatalf("trail should record the failure, got %q", out.Trail)
			}
			if later.ran {
				t.Fatal("rule after the failing one must not run")
			}
			if req.Service != before.Service || req.ServerHost != before.ServerHost || req.Endpoint != before.Endpoint {
				t.Fatalf("required fields rule must not mutate the request: %+v", req)
			}
		})
	}
}

func TestChainIsOrderPreserving(t *testing.T) {
	t.Run("A fails before B", func(t *testing.T) {
		a := &recordingRule{name: "A", result: false}
		b := &recordingRule{name: "B", result: true, mutate: func(r *request.Request) { r.Subject = "from B" }}
		req := completeRequest()

		out := NewChain(a, b).Validate(req)

		if out.Valid || out.Reason != "A failed" {
			t.Fatalf("unexpected outcome %+v", out)
		}
		if b.ran || req.Subject != "" {
			t.Fatal("B's side effects must not occur")
		}
	})

	t.Run("B fails before A", func(t *testing.T) {
		a := &recordingRule{name: "A", result: true, mutate: func(r *request.Request) { r.Subject = "from A" }}
		b := &recordingRule{name: "B", result: false}
		req := completeRequest()

		out := NewChain(b, a).Validate(req)

		if out.Valid || out.Reason != "B failed" {
			t.Fatalf("unexpected outcome %+v", out)
		}
		if a.ran || req.Subject != "" {
			t.Fatal("A's side effects must not occur")
		}
	})
}

func TestMutationVisibleToLaterRules(t *testing.T) {
	var seen string
	observer := &recordingRule{name: "observer", result: true}
	observer.mutate = func(r *request.Request) { seen = r.CorrelationID }

	req := completeRequest()
	req.CorrelationID = ""
	NewChain(CorrelationIDRule{NewID: func() string { return "fixed-id" }}, observer).Validate(req)

	if seen != "fixed-id" {
		t.Fatalf("later rule should observe repaired id, saw %q", seen)
	}
}

func TestNilRequest(t *testing.T) {
	out := Default(nil).Validate(nil)
	if out.Valid || out.Reason != ReasonNilRequest {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestTrailOrdering(t *testing.T) {
	out := Default(nil).Validate(completeRequest())
	lines := strings.Split(out.Trail, "\n")
	want := []string{"validation started", "correlation id received: given-id", "required fields present", "validation completed"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d trail lines, got %q", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEmptyRequestEndToEndVerdict(t *testing.T) {
	req := &request.Request{}
	out := Default(nil).Validate(req)

	if out.Valid || out.Reason != ReasonMissingRequired {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if req.CorrelationID == "" {
		t.Fatal("expected correlation id assigned before the required-fields rule failed")
	}
}

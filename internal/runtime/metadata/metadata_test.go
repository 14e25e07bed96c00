package metadata

import (
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestNewPairs(t *testing.T) {
	md := New(KeyCorrelationID, "abc", KeySource, "Reports", "dangling")
	if len(md) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(md))
	}
	if md[KeyCorrelationID] != "abc" || md[KeySource] != "Reports" {
		t.Fatalf("unexpected metadata %#v", md)
	}
}

func TestWithDoesNotAlias(t *testing.T) {
	base := New(KeySource, "Reports")
	enriched := base.With(KeyLogLevel, "Warning")

	if _, ok := base[KeyLogLevel]; ok {
		t.Fatal("base map must not change")
	}
	if enriched[KeyLogLevel] != "Warning" || enriched[KeySource] != "Reports" {
		t.Fatalf("unexpected enriched map %#v", enriched)
	}
}

func TestValidate(t *testing.T) {
	full := New(KeyCorrelationID, "abc", KeyLogLevel, "Information", KeySource, "Reports")
	if err := full.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := New(KeySource, "Reports").Validate()
	if err == nil {
		t.Fatal("expected missing headers error")
	}
	if !strings.Contains(err.Error(), KeyCorrelationID) || !strings.Contains(err.Error(), KeyLogLevel) {
		t.Fatalf("error should name missing headers, got %v", err)
	}
}

func TestWatermillConversionCopies(t *testing.T) {
	md := New(KeyCorrelationID, "abc")
	wm := ToWatermill(md)
	wm.Set(KeyCorrelationID, "changed")
	if md[KeyCorrelationID] != "abc" {
		t.Fatal("ToWatermill must copy")
	}

	back := FromWatermill(message.Metadata{KeySource: "Reports"})
	if back[KeySource] != "Reports" {
		t.Fatalf("unexpected conversion %#v", back)
	}
	if got := FromWatermill(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", got)
	}
}

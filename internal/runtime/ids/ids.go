// Package ids generates the identifiers that flow through the pipeline:
// correlation ids that tie records to a request, and time-sortable ULIDs
// used as broker message ids.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// MessageID returns a ULID for a broker message. IDs created by one process
// are strictly increasing.
func MessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewCorrelationID returns a random (v4) correlation id in canonical form.
func NewCorrelationID() string {
	return uuid.NewString()
}

// IsWellFormed reports whether id is non-empty and parses as a UUID.
func IsWellFormed(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Package enrich stamps server-observed metadata onto a request.
package enrich

import (
	"time"

	"github.com/drblury/reportflow/internal/runtime/request"
)

// Identity is the server identity resolved once at startup.
type Identity struct {
	Service  string
	Host     string
	Endpoint string
}

// Enricher overwrites timestamp, host, service and endpoint on a request.
type Enricher struct {
	identity Identity
	clock    request.Clock
}

// New returns an Enricher for identity. A nil clock means request.SystemClock.
func New(identity Identity, clock request.Clock) *Enricher {
	if clock == nil {
		clock = request.SystemClock
	}
	return &Enricher{identity: identity, clock: clock}
}

// ForEndpoint returns a copy of e bound to route.
func (e *Enricher) ForEndpoint(route string) *Enricher {
	id := e.identity
	id.Endpoint = route
	return &Enricher{identity: id, clock: e.clock}
}

// Identity returns the identity e stamps.
func (e *Enricher) Identity() Identity { return e.identity }

// Enrich overwrites the server-owned fields of req and returns it. Prior
// values are discarded, never merged. A nil request yields nil.
func (e *Enricher) Enrich(req *request.Request) *request.Request {
	if req == nil {
		return nil
	}
	req.Timestamp = e.now()
	req.ServerHost = e.identity.Host
	req.Service = e.identity.Service
	req.Endpoint = e.identity.Endpoint
	return req
}

func (e *Enricher) now() time.Time {
	return e.clock()
}

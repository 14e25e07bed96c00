/*
Package runtime assembles the report service from its parts.

# Serving

Service wires the components in dependency order:
  - the transport publisher for the configured broker (transport registry)
  - broker.Publisher, which caps in-flight publishes and bounds each one
  - emitter.Emitter, which shards records by correlation id and falls back
    to a local sink
  - the validation chain and the request enricher
  - orchestrator.Orchestrator with logging and metrics hooks
  - the top-products report operation
  - the echo HTTP server

Start serves until its context is cancelled. Shutdown stops the HTTP server
first so no new records are produced, then drains the emitter, then flushes
and closes the broker session within the configured grace period.

# Tailing

Tail reads the record topics back through a watermill router, one handler
per topic, and hands each decoded record to a RecordHandler. RecordPrinter is
the handler used by the tail command. Messages that are not records are
logged and acknowledged.

# Sub-packages

  - records, request, metadata: the data model and broker headers
  - validation, enrich, orchestrator: the request pipeline
  - emitter, broker: record delivery
  - config, logging, metrics, errors, ids, jsoncodec: shared infrastructure
*/
package runtime

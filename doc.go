// Package reportflow is a report-generation service that publishes an audit
// trail for every request it handles. Each request is validated, enriched with
// server-observed metadata, executed and then described by structured records
// (request outcomes, named events and errors) shipped to a message broker.
//
// The broker is chosen at startup from Config. Kafka is the default; RabbitMQ,
// AWS SNS/SQS, NATS, HTTP and in-process Go channels are also available. When
// the broker cannot take a record, the record is written to a local zerolog
// sink instead so nothing is silently lost.
//
// # Records
//
// Records are JSON with lower-camel field names and are routed by kind:
//   - RequestOutcome to the request topic (default "request-logs")
//   - Event to the event topic (default "event-logs")
//   - Error to the error topic (default "error-logs")
//
// Every broker message carries CorrelationId, LogLevel, Source and RecordType
// headers. Kafka keys messages by correlation id so the records of one request
// stay ordered on a single partition.
//
// # Commands
//
// The reportflow binary has three commands:
//   - serve runs the HTTP API and the publishing pipeline
//   - tail reads the record topics back and prints each record
//   - config prints the effective configuration with secrets redacted
//
// Configuration is read from REPORTFLOW_* environment variables and optional
// .env files.
package reportflow

// Package observability provides an OpenTelemetry metrics extension for
// Architect. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for scheduled, started, ended and errored jobs and
// for published outputs.
//
// For per-handler tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

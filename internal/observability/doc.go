// Package observability provides structured logging, metrics, and tracing
// for the session and tenant resolution service.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Prometheus counters and histograms for session validation, refresh,
//     tenant resolution and outbound provider calls
//   - OpenTelemetry tracer provider setup with an OTLP gRPC exporter
package observability

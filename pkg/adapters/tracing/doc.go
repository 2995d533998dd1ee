// Package tracing configures the OpenTelemetry tracer provider.
//
// The engine creates spans through otel.Tracer; until Init installs a
// provider those spans are no-ops. Supported exporters:
//   - none: keep the no-op provider
//   - stdout: pretty-printed spans on stdout, for local debugging
package tracing

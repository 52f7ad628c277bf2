// Package prometheus provides Prometheus collectors for token-service metrics.
//
// [NewPrometheusExporter] accepts a [tokens.TokenService] and exposes an [http.Handler]
// that renders all service counters and histograms in Prometheus text exposition format.
// Counter names are prefixed tokens_*_total; the single histogram is
// tokens_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus

// Package prometheus provides Prometheus collectors for goToken metrics.
//
// [NewPrometheusExporter] accepts a [goToken.Service] and exposes an [http.Handler]
// that renders all goToken counters and histograms in Prometheus text exposition format.
// Counter names are prefixed gotoken_*_total; the single histogram is
// gotoken_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus

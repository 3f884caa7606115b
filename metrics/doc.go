// Package metrics aggregates pipeline health and raises threshold
// alerts.
//
// Three pieces work together: the Collector computes throughput,
// latency, and error-rate snapshots over sliding windows by querying
// the stores (never by keeping in-process counters, so a fleet of
// stateless invocations agrees on the numbers); the Evaluator compares
// snapshots against alert thresholds and fires debounced alerts; and
// the OTelHook exports per-event counters to OpenTelemetry for external
// dashboards.
package metrics

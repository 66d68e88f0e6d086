// Package observability provides an OpenTelemetry-based metrics
// extension for Jobline. The MetricsExtension implements the hook
// interfaces to record counters for applied job changes, emitted
// notifications, and change feed state flips.
package observability

// Package tracing is a thin wrapper around OpenTelemetry so the rest of the
// code base can start and end spans without importing the upstream API.
package tracing

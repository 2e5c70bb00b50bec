// Package tracing wraps OpenTelemetry so kernel code can open and close
// spans around steps and syscalls without importing the SDK. Until Init or
// InitWithExporter runs, spans are no-ops.
package tracing

// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and terminal-state notifications.
package sinks

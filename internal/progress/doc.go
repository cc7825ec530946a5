// Package progress carries job milestones from the orchestrator to sinks
// (logs, Prometheus, notifications) through a non-blocking batching Hub.
package progress

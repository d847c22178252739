// Package notifications publishes job and reprocessing events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Delivery is best-effort: callers log the
// returned error and carry on.
package notifications

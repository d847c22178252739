// Package tracking updates the care-session tracking record that a job was
// linked to when it was submitted.
//
// Updates are PATCH requests against the configured collaborator. The
// service is a no-op when no base URL is configured, and every call is a
// no-op for jobs without a linked session id.
package tracking

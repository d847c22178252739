// Package pipeline turns an uploaded session recording into a stored,
// analysed transcript.
//
// A Job moves through received, normalizing, optionally segmenting,
// transcribing, analyzing and persisting before ending completed or failed.
// Coordinator.Run drives one job and always releases its workspace and
// upload. Dispatcher feeds jobs to a fixed set of worker goroutines through
// a bounded queue. RunText is the synchronous path for transcripts that
// arrive as text.
package pipeline

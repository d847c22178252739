// Package daemon coordinates the long-running carescribe server process.
//
// It ties the job dispatcher, the HTTP front end and the background
// reprocessor into a single lifecycle with flock-based locking to prevent
// multiple instances sharing one data directory. Startup sweeps job
// workspaces left behind by a crash before any worker runs.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon

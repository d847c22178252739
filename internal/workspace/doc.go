// Package workspace owns the per-job scratch directories.
//
// Acquire creates a directory named after the job id under the configured
// work root; Release removes it together with the uploaded source file and is
// safe to defer and to call more than once. CleanStale sweeps directories a
// crashed process left behind.
package workspace

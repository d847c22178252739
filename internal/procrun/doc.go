// Package procrun runs external tools (ffmpeg, ffprobe) under a wall-clock
// deadline.
//
// Run is synchronous and context-bound: it spawns the tool in its own process
// group, waits for it, and on deadline expiry kills the group with SIGKILL.
// Callers receive exactly one Result per invocation plus an error tagged with
// services.ErrTimeout or services.ErrExternalTool for classification.
package procrun

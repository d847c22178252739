// Package media turns uploaded session media into canonical audio and splits
// long recordings into ordered chunks.
//
// Canonical audio is mono 16 kHz 16-bit PCM WAV. Normalize produces it with
// ffmpeg; Segment cuts it into fixed windows with the segment muxer using
// stream copy; ProbeDuration reads the container duration with ffprobe. All
// tool invocations go through a procrun.Runner so tests can substitute a fake.
package media

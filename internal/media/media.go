package media

import (
	"strings"
	"time"

	"carescribe/internal/procrun"
)

const (
	// DefaultSegmentThreshold is the canonical audio size above which a job
	// is split before transcription.
	DefaultSegmentThreshold int64 = 90 * 1024 * 1024
	// DefaultSegmentDuration is the fixed chunk window.
	DefaultSegmentDuration = 600 * time.Second

	chunkPattern = "part_%03d.wav"
	chunkGlob    = "part_*.wav"
)

// Chunk is one ordered slice of canonical audio.
type Chunk struct {
	Index int
	Path  string
}

// Processor runs ffmpeg and ffprobe for a job.
type Processor struct {
	runner          procrun.Runner
	ffmpeg          string
	ffprobe         string
	timeout         time.Duration
	segmentDuration time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithFFmpeg overrides the ffmpeg binary.
func WithFFmpeg(binary string) Option {
	return func(p *Processor) {
		if binary = strings.TrimSpace(binary); binary != "" {
			p.ffmpeg = binary
		}
	}
}

// WithFFprobe overrides the ffprobe binary.
func WithFFprobe(binary string) Option {
	return func(p *Processor) {
		if binary = strings.TrimSpace(binary); binary != "" {
			p.ffprobe = binary
		}
	}
}

// WithTimeout sets the per-invocation deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithSegmentDuration sets the chunk window used by Segment.
func WithSegmentDuration(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.segmentDuration = d
		}
	}
}

// NewProcessor builds a Processor around runner. A nil runner uses the real
// process runner.
func NewProcessor(runner procrun.Runner, opts ...Option) *Processor {
	if runner == nil {
		runner = procrun.NewExec()
	}
	p := &Processor{
		runner:          runner,
		ffmpeg:          "ffmpeg",
		ffprobe:         "ffprobe",
		timeout:         procrun.DefaultTimeout,
		segmentDuration: DefaultSegmentDuration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

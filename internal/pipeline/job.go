package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carescribe/internal/recordstore"
)

// State is a job lifecycle state.
type State string

const (
	StateReceived     State = "received"
	StateNormalizing  State = "normalizing"
	StateSegmenting   State = "segmenting"
	StateTranscribing State = "transcribing"
	StateAnalyzing    State = "analyzing"
	StatePersisting   State = "persisting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one media file being processed. Jobs live only in memory.
type Job struct {
	ID         string
	SourcePath string
	FileName   string
	Subject    recordstore.SubjectContext
	CreatedAt  time.Time
	State      State
	// OwnsSource marks SourcePath as an upload that is deleted with the
	// workspace.
	OwnsSource bool
}

// NewJob returns a received job with a fresh id.
func NewJob(sourcePath, fileName string, subject recordstore.SubjectContext) Job {
	return Job{
		ID:         uuid.NewString(),
		SourcePath: strings.TrimSpace(sourcePath),
		FileName:   strings.TrimSpace(fileName),
		Subject:    subject.Normalized(),
		CreatedAt:  time.Now().UTC(),
		State:      StateReceived,
	}
}

// Advance returns a copy of j in state next, or an error when the edge is
// not part of the lifecycle.
func (j Job) Advance(next State) (Job, error) {
	if !validTransition(j.State, next) {
		return j, fmt.Errorf("invalid job transition %s -> %s", j.State, next)
	}
	j.State = next
	return j, nil
}

func validTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	switch from {
	case StateReceived:
		return to == StateNormalizing
	case StateNormalizing:
		return to == StateSegmenting || to == StateTranscribing
	case StateSegmenting:
		return to == StateTranscribing
	case StateTranscribing:
		return to == StateAnalyzing
	case StateAnalyzing:
		return to == StatePersisting
	case StatePersisting:
		return to == StateCompleted
	default:
		return false
	}
}

// TextJob is a transcript submitted as text.
type TextJob struct {
	FileName  string
	Text      string
	Subject   recordstore.SubjectContext
	CreatedAt time.Time
}

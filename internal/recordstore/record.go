package recordstore

import (
	"strings"
	"time"

	"carescribe/internal/analysis"
)

// SubjectContext is the association bag sent with a job.
type SubjectContext struct {
	SubjectID   string `json:"subjectId,omitempty" yaml:"subject_id,omitempty"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	Contact     string `json:"contact,omitempty" yaml:"contact,omitempty"`
	Program     string `json:"program,omitempty" yaml:"program,omitempty"`
	RequestID   string `json:"requestId,omitempty" yaml:"request_id,omitempty"`
	SessionID   string `json:"sessionId,omitempty" yaml:"session_id,omitempty"`
	SessionDate string `json:"sessionDate,omitempty" yaml:"session_date,omitempty"`
}

// Normalized returns a copy with surrounding whitespace removed.
func (s SubjectContext) Normalized() SubjectContext {
	return SubjectContext{
		SubjectID:   strings.TrimSpace(s.SubjectID),
		DisplayName: strings.TrimSpace(s.DisplayName),
		Contact:     strings.TrimSpace(s.Contact),
		Program:     strings.TrimSpace(s.Program),
		RequestID:   strings.TrimSpace(s.RequestID),
		SessionID:   strings.TrimSpace(s.SessionID),
		SessionDate: strings.TrimSpace(s.SessionDate),
	}
}

// Record is a persisted transcript with its analysis. Size is the transcript
// length in bytes.
type Record struct {
	Name      string             `json:"name" yaml:"name"`
	FileName  string             `json:"fileName" yaml:"file_name"`
	Size      int                `json:"size" yaml:"size"`
	CreatedAt time.Time          `json:"createdAt" yaml:"created_at"`
	Metadata  SubjectContext     `json:"metadata" yaml:"metadata"`
	Analysis  *analysis.Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// documentEntry is the value stored under each name in the local document.
type documentEntry struct {
	FileName  string             `json:"fileName"`
	Size      int                `json:"size"`
	CreatedAt time.Time          `json:"createdAt"`
	Metadata  SubjectContext     `json:"metadata"`
	Analysis  *analysis.Analysis `json:"analysis,omitempty"`
}

func (r Record) entry() documentEntry {
	return documentEntry{
		FileName:  r.FileName,
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
		Metadata:  r.Metadata,
		Analysis:  r.Analysis,
	}
}

func (e documentEntry) record(name string) Record {
	return Record{
		Name:      name,
		FileName:  e.FileName,
		Size:      e.Size,
		CreatedAt: e.CreatedAt,
		Metadata:  e.Metadata,
		Analysis:  e.Analysis,
	}
}

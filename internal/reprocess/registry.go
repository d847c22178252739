package reprocess

import (
	"sort"
	"strings"
	"sync"
)

// Registry is the set of subjects under reprocessing plus the bulk flag.
// The zero value is ready to use.
type Registry struct {
	mu       sync.Mutex
	subjects map[string]struct{}
	bulk     bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subjects: make(map[string]struct{})}
}

// TryLockSubject marks subjectID busy. It reports false when the subject is
// already locked or the id is empty.
func (r *Registry) TryLockSubject(subjectID string) bool {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockLocked(subjectID)
}

// TryLockSubjectUnlessBulk is TryLockSubject that also fails while a bulk
// sweep is running. Both checks and the lock happen under one mutex hold.
func (r *Registry) TryLockSubjectUnlessBulk(subjectID string) bool {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulk {
		return false
	}
	return r.lockLocked(subjectID)
}

// lockLocked requires r.mu.
func (r *Registry) lockLocked(subjectID string) bool {
	if r.subjects == nil {
		r.subjects = make(map[string]struct{})
	}
	if _, busy := r.subjects[subjectID]; busy {
		return false
	}
	r.subjects[subjectID] = struct{}{}
	return true
}

// UnlockSubject releases subjectID. Unlocking a free subject is a no-op.
func (r *Registry) UnlockSubject(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subjects, strings.TrimSpace(subjectID))
}

// TryBeginBulk sets the bulk flag, reporting false when it was already set.
func (r *Registry) TryBeginBulk() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulk {
		return false
	}
	r.bulk = true
	return true
}

// EndBulk clears the bulk flag.
func (r *Registry) EndBulk() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulk = false
}

// BulkActive reports whether a bulk sweep is running.
func (r *Registry) BulkActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bulk
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Subjects    []string `json:"subjects"`
	BulkRunning bool     `json:"bulk_running"`
}

// Snapshot returns the locked subjects in sorted order and the bulk flag.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	subjects := make([]string, 0, len(r.subjects))
	for id := range r.subjects {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)
	return Snapshot{Subjects: subjects, BulkRunning: r.bulk}
}

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Workspace is the job-scoped scratch directory plus the upload it was
// created for. Both are removed by Release.
type Workspace struct {
	Dir    string
	Source string

	once sync.Once
	err  error
}

// Acquire creates <root>/<jobID> and returns a handle owning it. sourcePath
// may be empty when the input file is not owned by the job (for example a
// file named on the command line).
func Acquire(root, jobID, sourcePath string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	jobID = strings.TrimSpace(jobID)
	if root == "" {
		return nil, errors.New("workspace root is empty")
	}
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %q: %w", dir, err)
	}
	return &Workspace{Dir: dir, Source: strings.TrimSpace(sourcePath)}, nil
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Release removes the workspace subtree and the owned source file. It runs
// its removal once; later calls return the first result.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		var errs []error
		if err := os.RemoveAll(w.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove workspace %q: %w", w.Dir, err))
		}
		if w.Source != "" {
			if err := os.Remove(w.Source); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove source %q: %w", w.Source, err))
			}
		}
		w.err = errors.Join(errs...)
	})
	return w.err
}

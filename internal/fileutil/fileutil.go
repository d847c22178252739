package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by WriteStream when the source exceeds its limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// StagedFile is a fully written temporary file waiting to replace its target.
type StagedFile struct {
	tmpName string
	target  string
	done    bool
}

// Stage writes data to a temporary file in the target's directory. Nothing is
// visible at path until Commit.
func Stage(path string, data []byte, mode os.FileMode) (*StagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &StagedFile{tmpName: tmpName, target: path}, nil
}

// Commit renames the staged file over its target. A failed commit removes
// the temporary file.
func (f *StagedFile) Commit() error {
	if f.done {
		return errors.New("staged file already finished")
	}
	f.done = true
	if err := os.Rename(f.tmpName, f.target); err != nil {
		_ = os.Remove(f.tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Discard removes the staged file unless it was committed.
func (f *StagedFile) Discard() {
	if f == nil || f.done {
		return
	}
	f.done = true
	_ = os.Remove(f.tmpName)
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	staged, err := Stage(path, data, mode)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// WriteStream copies r into a new file at dst. When maxBytes is positive and
// r holds more than maxBytes, the partial file is removed and ErrTooLarge is
// returned.
func WriteStream(dst string, r io.Reader, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	written, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && maxBytes > 0 && written > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return written, err
	}
	return written, nil
}

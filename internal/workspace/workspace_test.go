package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"carescribe/internal/logging"
)

func TestAcquireCreatesJobDirectory(t *testing.T) {
	root := t.TempDir()
	ws, err := Acquire(root, "job-1", "")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ws.Dir != filepath.Join(root, "job-1") {
		t.Fatalf("unexpected dir %q", ws.Dir)
	}
	if info, err := os.Stat(ws.Dir); err != nil || !info.IsDir() {
		t.Fatalf("expected workspace dir: %v", err)
	}
}

func TestAcquireRejectsBadIDs(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", "  ", "..", "a/b"} {
		if _, err := Acquire(root, id, ""); err == nil {
			t.Errorf("expected error for job id %q", id)
		}
	}
	if _, err := Acquire("", "job", ""); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestReleaseRemovesWorkspaceAndSource(t *testing.T) {
	root := t.TempDir()
	upload := filepath.Join(t.TempDir(), "upload.mp3")
	if err := os.WriteFile(upload, []byte("data"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	ws, err := Acquire(root, "job-2", upload)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := os.WriteFile(ws.Path("audio.wav"), []byte("pcm"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := os.MkdirAll(ws.Path("chunks"), 0o755); err != nil {
		t.Fatalf("mkdir chunks: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("expected upload removed, stat err=%v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "job-3", filepath.Join(t.TempDir(), "missing.wav"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Release(); err != nil {
				t.Errorf("Release: %v", err)
			}
		}()
	}
	wg.Wait()

	// A directory recreated after release is left alone.
	if err := os.MkdirAll(ws.Dir, 0o755); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("expected second release to be a no-op: %v", err)
	}

	var nilWorkspace *Workspace
	if err := nilWorkspace.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldWorkspaces(t *testing.T) {
	root := t.TempDir()

	oldDir := filepath.Join(root, "old-job")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}
	recentDir := filepath.Join(root, "recent-job")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}
	strayFile := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(strayFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Chtimes(strayFile, oldTime, oldTime); err != nil {
		t.Fatalf("set file time: %v", err)
	}

	result := CleanStale(context.Background(), root, 24*time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent workspace should still exist")
	}
	if _, err := os.Stat(strayFile); err != nil {
		t.Error("files are not swept")
	}
}

func TestCleanStaleDisabledWithZeroAge(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "job")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	_ = os.Chtimes(dir, old, old)
	if result := CleanStale(context.Background(), root, 0, logging.NewNop()); len(result.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", result.Removed)
	}
}

package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"carescribe/internal/logging"
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/testsupport"
)

func TestBuildWiresTextPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""

	stack, err := Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer stack.Close()

	record, err := stack.Coordinator.RunText(context.Background(), pipeline.TextJob{
		Text:    "Session notes.",
		Subject: recordstore.SubjectContext{DisplayName: "Ann Lee", SubjectID: "s1"},
	})
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}
	if record.Analysis == nil || !record.Analysis.Fallback {
		t.Fatalf("expected fallback analysis without an llm key, got %+v", record.Analysis)
	}
	stored, transcript, err := stack.Store.Get(context.Background(), record.Name)
	if err != nil || stored == nil || transcript != "Session notes." {
		t.Fatalf("record not stored: %+v %q %v", stored, transcript, err)
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "carescribe-1.log")
	second := filepath.Join(dir, "carescribe-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, logging.LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "carescribe-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carescribe.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(path); err != nil || len(data) < 2 {
		t.Fatalf("pid file not written: %q %v", data, err)
	}
}

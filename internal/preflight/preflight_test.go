package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carescribe/internal/config"
	"carescribe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func llmServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckLLM_OK(t *testing.T) {
	srv := llmServer(t, http.StatusOK, `{"ok":true}`)
	result := CheckLLM(context.Background(), "Analysis LLM", config.LLM{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	srv := llmServer(t, http.StatusUnauthorized, "")
	result := CheckLLM(context.Background(), "Analysis LLM", config.LLM{APIKey: "bad", BaseURL: srv.URL, Model: "m"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	if result := CheckLLM(context.Background(), "Analysis LLM", config.LLM{}); result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, false); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.LLM.APIKey = ""

	results := RunAll(context.Background(), cfg, true)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Data directory", "Upload directory", "Transcription", "FFmpeg", "FFprobe", "Analysis LLM"} {
		if !names[want] {
			t.Errorf("missing check %q in %+v", want, results)
		}
	}
}

func TestRunAll_ReportsMissingPieces(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.APIKey = ""
	cfg.FFmpeg.Binary = "clearly-not-present-ffmpeg"
	if err := os.RemoveAll(cfg.Paths.UploadDir); err != nil {
		t.Fatal(err)
	}

	failed := map[string]bool{}
	for _, r := range Failed(RunAll(context.Background(), cfg, false)) {
		failed[r.Name] = true
	}
	for _, want := range []string{"Transcription", "FFmpeg", "Upload directory"} {
		if !failed[want] {
			t.Errorf("expected %q to fail, failures: %v", want, failed)
		}
	}
}

func TestRunAll_ContactsLLMWhenRequested(t *testing.T) {
	srv := llmServer(t, http.StatusOK, `{"ok":true}`)
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.LLM.APIKey = "k"
	cfg.LLM.BaseURL = srv.URL

	for _, r := range RunAll(context.Background(), cfg, true) {
		if r.Name == "Analysis LLM" && r.Detail != "API reachable" {
			t.Fatalf("expected live check, got %+v", r)
		}
	}
}

func TestCheckMediaTools(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(ffmpeg, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.Binary = ffmpeg
	cfg.FFmpeg.ProbeBinary = "clearly-not-present-ffprobe"

	results := CheckMediaTools(cfg)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].Name != "FFmpeg" || !results[0].Passed || results[0].Detail != ffmpeg {
		t.Fatalf("unexpected ffmpeg result: %+v", results[0])
	}
	if results[1].Name != "FFprobe" || !results[1].Passed || !strings.Contains(results[1].Detail, "optional") {
		t.Fatalf("missing ffprobe should pass as optional: %+v", results[1])
	}

	cfg.FFmpeg.Binary = "  "
	results = CheckMediaTools(cfg)
	if results[0].Passed || !strings.Contains(results[0].Detail, "no binary configured") {
		t.Fatalf("unset ffmpeg should fail: %+v", results[0])
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"carescribe/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"CARESCRIBE_STT_API_KEY", "GEMINI_API_KEY", "CARESCRIBE_LLM_API_KEY", "OPENROUTER_API_KEY", "CARESCRIBE_TRACKING_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(home, ".local", "share", "carescribe", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Transcription.APIKey != "" {
		t.Fatalf("expected empty transcription key, got %q", cfg.Transcription.APIKey)
	}
	if err := cfg.RequireTranscription(); err == nil {
		t.Fatal("expected RequireTranscription to fail without a key")
	}
	if cfg.SegmentThresholdBytes() != 90*1024*1024 {
		t.Fatalf("unexpected segment threshold: %d", cfg.SegmentThresholdBytes())
	}
	if cfg.SegmentDuration() != 10*time.Minute {
		t.Fatalf("unexpected segment duration: %s", cfg.SegmentDuration())
	}
	if cfg.RecordsDocumentPath() != filepath.Join(cfg.Paths.DataDir, "records.json") {
		t.Fatalf("unexpected records path: %q", cfg.RecordsDocumentPath())
	}
	if !cfg.Store.DurableEnabled {
		t.Fatal("expected durable mirror enabled by default")
	}
}

func TestLoadUsesEnvironmentKeys(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEMINI_API_KEY", " stt-key ")
	t.Setenv("OPENROUTER_API_KEY", "llm-key")
	t.Setenv("CARESCRIBE_TRACKING_TOKEN", "track")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transcription.APIKey != "stt-key" {
		t.Fatalf("expected stt key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.LLM.APIKey != "llm-key" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Tracking.Token != "track" {
		t.Fatalf("expected tracking token from env, got %q", cfg.Tracking.Token)
	}
}

func TestLoadPrefersProjectSpecificEnvKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CARESCRIBE_STT_API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY", "secondary")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transcription.APIKey != "primary" {
		t.Fatalf("expected CARESCRIBE_STT_API_KEY to win, got %q", cfg.Transcription.APIKey)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	home := isolateEnv(t)

	configPath := filepath.Join(t.TempDir(), "carescribe.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/sessions",
		},
		"pipeline": map[string]any{
			"workers":            4,
			"queue_size":         8,
			"allowed_extensions": []string{".MP3", "wav", "mp3", " "},
		},
		"transcription": map[string]any{
			"api_key":  "file-key",
			"base_url": "https://stt.example.com/",
			"language": " Español ",
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(home, "sessions") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.QueueSize != 8 {
		t.Fatalf("unexpected pool sizing: %+v", cfg.Pipeline)
	}
	if got := strings.Join(cfg.Pipeline.AllowedExtensions, ","); got != "mp3,wav" {
		t.Fatalf("unexpected extensions: %q", got)
	}
	if !cfg.AllowsExtension(".WAV") {
		t.Fatal("expected .WAV to be allowed")
	}
	if cfg.AllowsExtension("exe") {
		t.Fatal("expected exe to be rejected")
	}
	if cfg.Transcription.APIKey != "file-key" {
		t.Fatalf("unexpected key: %q", cfg.Transcription.APIKey)
	}
	if cfg.Transcription.BaseURL != "https://stt.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Transcription.BaseURL)
	}
	if cfg.Transcription.Language != "es" {
		t.Fatalf("expected language normalized to ISO code, got %q", cfg.Transcription.Language)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolateEnv(t)
	configPath := filepath.Join(t.TempDir(), "carescribe.toml")
	if err := os.WriteFile(configPath, []byte("[pipeline]\nworkerz = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "zero segment seconds",
			mutate: func(c *config.Config) { c.Pipeline.SegmentSeconds = 0 },
			want:   "pipeline.segment_seconds",
		},
		{
			name:   "too many workers",
			mutate: func(c *config.Config) { c.Pipeline.Workers = 100 },
			want:   "pipeline.workers",
		},
		{
			name:   "relative tracking url",
			mutate: func(c *config.Config) { c.Tracking.BaseURL = "tracking.local" },
			want:   "tracking.base_url",
		},
		{
			name:   "unknown log level",
			mutate: func(c *config.Config) { c.Logging.Level = "chatty" },
			want:   "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Paths.UploadDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}

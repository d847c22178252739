package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	WorkDir   string `toml:"work_dir"`
	UploadDir string `toml:"upload_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Pipeline contains job scheduling and media handling limits.
type Pipeline struct {
	Workers                  int      `toml:"workers"`
	QueueSize                int      `toml:"queue_size"`
	SegmentThresholdMB       int      `toml:"segment_threshold_mb"`
	SegmentSeconds           int      `toml:"segment_seconds"`
	ConversionTimeoutSeconds int      `toml:"conversion_timeout_seconds"`
	MaxUploadMB              int      `toml:"max_upload_mb"`
	AllowedExtensions        []string `toml:"allowed_extensions"`
	StaleWorkspaceHours      int      `toml:"stale_workspace_hours"`
}

// FFmpeg contains the external transcoding tool names.
type FFmpeg struct {
	Binary      string `toml:"binary"`
	ProbeBinary string `toml:"probe_binary"`
}

// Transcription contains speech-to-text service settings.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// LLM contains the language-understanding service settings used for analysis.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tracking contains the session tracking-record collaborator settings.
type Tracking struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Reprocess      bool   `toml:"reprocess"`
}

// Store contains record persistence settings.
type Store struct {
	DurableEnabled bool `toml:"durable_enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for carescribe.
//
// Configuration sections by subsystem:
//   - Paths: data, workspace, upload and log directories plus the API bind address
//   - Pipeline: worker pool, segmentation and upload limits
//   - FFmpeg: transcoding tool names
//   - Transcription: speech-to-text service
//   - LLM: analysis service
//   - Tracking: session tracking-record updates
//   - Notifications: ntfy push notification settings
//   - Store: durable record mirror
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Tracking      Tracking      `toml:"tracking"`
	Notifications Notifications `toml:"notifications"`
	Store         Store         `toml:"store"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("carescribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.UploadDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SegmentThresholdBytes returns the canonical audio size above which the
// segmenter splits the file.
func (c *Config) SegmentThresholdBytes() int64 {
	return int64(c.Pipeline.SegmentThresholdMB) * 1024 * 1024
}

// MaxUploadBytes returns the largest accepted media upload.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Pipeline.MaxUploadMB) * 1024 * 1024
}

// SegmentDuration returns the fixed chunk window.
func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.Pipeline.SegmentSeconds) * time.Second
}

// ConversionTimeout returns the per-invocation deadline for ffmpeg.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Pipeline.ConversionTimeoutSeconds) * time.Second
}

// StaleWorkspaceAge returns the age after which leftover job workspaces are removed.
func (c *Config) StaleWorkspaceAge() time.Duration {
	return time.Duration(c.Pipeline.StaleWorkspaceHours) * time.Hour
}

// AllowsExtension reports whether a media upload with the given extension is accepted.
func (c *Config) AllowsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range c.Pipeline.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

// RecordsDocumentPath returns the local keyed-map document.
func (c *Config) RecordsDocumentPath() string {
	return filepath.Join(c.Paths.DataDir, "records.json")
}

// TranscriptsDir returns the directory holding transcript bodies.
func (c *Config) TranscriptsDir() string {
	return filepath.Join(c.Paths.DataDir, "transcripts")
}

// DatabasePath returns the durable record mirror database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "records.db")
}

// LockFilePath returns the single-instance lock used by the server.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.LogDir, "carescribe.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// RequireTranscription reports a configuration error when the speech-to-text
// service cannot be reached with the current settings.
func (c *Config) RequireTranscription() error {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		return fmt.Errorf("transcription.api_key is required. Set CARESCRIBE_STT_API_KEY or GEMINI_API_KEY, or edit the config (create with 'carescribe config init')")
	}
	return nil
}

package config

const (
	defaultConfigPath               = "~/.config/carescribe/config.toml"
	defaultDataDir                  = "~/.local/share/carescribe"
	defaultWorkDir                  = "~/.local/share/carescribe/work"
	defaultUploadDir                = "~/.local/share/carescribe/uploads"
	defaultLogDir                   = "~/.local/share/carescribe/logs"
	defaultAPIBind                  = "127.0.0.1:7490"
	defaultWorkers                  = 2
	defaultQueueSize                = 32
	defaultSegmentThresholdMB       = 90
	defaultSegmentSeconds           = 600
	defaultConversionTimeoutSeconds = 300
	defaultMaxUploadMB              = 1024
	defaultStaleWorkspaceHours      = 24
	defaultFFmpegBinary             = "ffmpeg"
	defaultFFprobeBinary            = "ffprobe"
	defaultTranscriptionBaseURL     = "https://generativelanguage.googleapis.com"
	defaultTranscriptionModel       = "gemini-2.5-flash"
	defaultTranscriptionTimeout     = 300
	defaultTranscriptionAttempts    = 3
	defaultLLMBaseURL               = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                 = "google/gemini-2.5-flash"
	defaultLLMReferer               = "https://github.com/carescribe/carescribe"
	defaultLLMTitle                 = "carescribe session analysis"
	defaultLLMTimeoutSeconds        = 60
	defaultTrackingTimeoutSeconds   = 10
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

var defaultAllowedExtensions = []string{"mp3", "wav", "m4a", "aac", "ogg", "oga", "flac", "webm", "mp4", "mov", "mkv", "avi"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			WorkDir:   defaultWorkDir,
			UploadDir: defaultUploadDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Pipeline: Pipeline{
			Workers:                  defaultWorkers,
			QueueSize:                defaultQueueSize,
			SegmentThresholdMB:       defaultSegmentThresholdMB,
			SegmentSeconds:           defaultSegmentSeconds,
			ConversionTimeoutSeconds: defaultConversionTimeoutSeconds,
			MaxUploadMB:              defaultMaxUploadMB,
			AllowedExtensions:        append([]string(nil), defaultAllowedExtensions...),
			StaleWorkspaceHours:      defaultStaleWorkspaceHours,
		},
		FFmpeg: FFmpeg{
			Binary:      defaultFFmpegBinary,
			ProbeBinary: defaultFFprobeBinary,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
			MaxAttempts:    defaultTranscriptionAttempts,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Tracking: Tracking{
			TimeoutSeconds: defaultTrackingTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Reprocess:      true,
		},
		Store: Store{
			DurableEnabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

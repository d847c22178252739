package daemonrun

import (
	"log/slog"
	"strings"

	"carescribe/internal/analysis"
	"carescribe/internal/config"
	"carescribe/internal/media"
	"carescribe/internal/notifications"
	"carescribe/internal/pipeline"
	"carescribe/internal/procrun"
	"carescribe/internal/recordstore"
	"carescribe/internal/reprocess"
	"carescribe/internal/services/llm"
	"carescribe/internal/services/stt"
	"carescribe/internal/tracking"
)

// Stack holds the components shared by the server and the one-shot
// commands.
type Stack struct {
	Store       *recordstore.Store
	Analyzer    *analysis.Analyzer
	Media       *media.Processor
	Notifier    notifications.Service
	Tracking    tracking.Service
	Reprocessor *reprocess.Reprocessor
	Coordinator *pipeline.Coordinator
}

// Build opens the record store and wires the pipeline around it. Close
// releases the store.
func Build(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	store, err := recordstore.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	analyzer := analysis.NewAnalyzer(newCompleter(cfg), logger)
	processor := media.NewProcessor(procrun.NewExec(),
		media.WithFFmpeg(cfg.FFmpeg.Binary),
		media.WithFFprobe(cfg.FFmpeg.ProbeBinary),
		media.WithTimeout(cfg.ConversionTimeout()),
		media.WithSegmentDuration(cfg.SegmentDuration()),
	)
	notifier := notifications.NewService(cfg)
	tracker := tracking.NewService(cfg)
	reprocessor := reprocess.New(store, analyzer, logger, reprocess.WithNotifier(notifier))

	coordinator := pipeline.NewCoordinator(pipeline.Dependencies{
		Media:       processor,
		Transcriber: newTranscriber(cfg),
		Analyzer:    analyzer,
		Store:       store,
		Tracking:    tracker,
		Notifier:    notifier,
		Sweeper:     reprocessor,
	}, cfg.Paths.WorkDir, cfg.SegmentThresholdBytes(), logger)

	return &Stack{
		Store:       store,
		Analyzer:    analyzer,
		Media:       processor,
		Notifier:    notifier,
		Tracking:    tracker,
		Reprocessor: reprocessor,
		Coordinator: coordinator,
	}, nil
}

// Close waits for background reprocess runs and closes the store.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	s.Reprocessor.Wait()
	return s.Store.Close()
}

func newCompleter(cfg *config.Config) analysis.Completer {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}

func newTranscriber(cfg *config.Config) stt.Transcriber {
	return stt.NewClient(stt.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
		MaxAttempts:    cfg.Transcription.MaxAttempts,
	})
}

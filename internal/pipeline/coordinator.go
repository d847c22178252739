package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"carescribe/internal/analysis"
	"carescribe/internal/logging"
	"carescribe/internal/media"
	"carescribe/internal/notifications"
	"carescribe/internal/recordstore"
	"carescribe/internal/services"
	"carescribe/internal/services/stt"
	"carescribe/internal/textutil"
	"carescribe/internal/tracking"
	"carescribe/internal/workspace"
)

const canonicalBaseName = "canonical"

// MediaProcessor converts and splits job audio.
type MediaProcessor interface {
	Normalize(ctx context.Context, sourcePath, workDir, baseName string) (string, error)
	Segment(ctx context.Context, canonicalPath, outDir string) ([]media.Chunk, error)
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	ExpectedChunks(d time.Duration) int
}

// Analyzer produces an analysis for a transcript. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, text string) analysis.Analysis
}

// RecordWriter persists a record and its transcript.
type RecordWriter interface {
	Upsert(ctx context.Context, record recordstore.Record, transcript string) error
}

// Sweeper starts a background reprocess of one subject.
type Sweeper interface {
	TriggerAsync(ctx context.Context, subjectID string, force bool)
}

// Dependencies are the collaborators a Coordinator drives. Tracking,
// Notifier and Sweeper are optional.
type Dependencies struct {
	Media       MediaProcessor
	Transcriber stt.Transcriber
	Analyzer    Analyzer
	Store       RecordWriter
	Tracking    tracking.Service
	Notifier    notifications.Service
	Sweeper     Sweeper
}

// Result is the outcome of one job.
type Result struct {
	Job    Job
	Record *recordstore.Record
	Chunks int
}

// Coordinator runs jobs through the pipeline.
type Coordinator struct {
	deps      Dependencies
	workRoot  string
	threshold int64
	logger    *slog.Logger
}

// NewCoordinator builds a coordinator that creates job workspaces under
// workRoot and segments canonical audio larger than threshold bytes.
func NewCoordinator(deps Dependencies, workRoot string, threshold int64, logger *slog.Logger) *Coordinator {
	if deps.Tracking == nil {
		deps.Tracking = tracking.NewService(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	if threshold <= 0 {
		threshold = media.DefaultSegmentThreshold
	}
	return &Coordinator{
		deps:      deps,
		workRoot:  workRoot,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run processes job to a terminal state. The returned error is non-nil only
// for failed jobs; the workspace and an owned upload are removed either way.
func (c *Coordinator) Run(ctx context.Context, job Job) (result Result, err error) {
	ctx = services.WithJobID(ctx, job.ID)
	if job.Subject.SubjectID != "" {
		ctx = services.WithSubjectID(ctx, job.Subject.SubjectID)
	}
	logger := logging.WithContext(ctx, c.logger)
	start := time.Now()

	owned := ""
	if job.OwnsSource {
		owned = job.SourcePath
	}
	ws, acquireErr := workspace.Acquire(c.workRoot, job.ID, owned)
	if acquireErr != nil {
		if owned != "" {
			_ = os.Remove(owned)
		}
		job, _ = job.Advance(StateFailed)
		failure := services.Wrap(services.ErrPersistence, string(StateReceived), "acquire workspace", "", acquireErr)
		c.reportFailure(ctx, logger, job, StateReceived, failure)
		return Result{Job: job}, failure
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			logging.WarnWithContext(logger, "workspace cleanup failed", "workspace_cleanup_failed",
				logging.Error(releaseErr),
				logging.String("workspace", ws.Dir),
				logging.String(logging.FieldErrorHint, "remove the directory manually; the next serve start sweeps stale workspaces"),
				logging.String(logging.FieldImpact, "disk space is held until the stale sweep runs"),
			)
		}
	}()

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("file_name", job.FileName),
		logging.String("display_name", job.Subject.DisplayName),
	)
	c.track(ctx, logger, func(tctx context.Context) error {
		return c.deps.Tracking.MarkProcessing(tctx, tracking.Update{SessionID: job.Subject.SessionID})
	})

	result, err = c.process(ctx, logger, job, ws)
	if err != nil {
		stage := result.Job.State
		result.Job, _ = result.Job.Advance(StateFailed)
		c.reportFailure(ctx, logger, result.Job, stage, err)
		return result, err
	}

	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String(logging.FieldRecordName, result.Record.Name),
		logging.Int("chunks", result.Chunks),
		logging.Int("transcript_bytes", result.Record.Size),
		logging.Bool("fallback_analysis", result.Record.Analysis != nil && result.Record.Analysis.Fallback),
		logging.Duration("duration", time.Since(start)),
	)
	c.reportCompletion(ctx, logger, *result.Record)
	return result, nil
}

func (c *Coordinator) process(ctx context.Context, logger *slog.Logger, job Job, ws *workspace.Workspace) (Result, error) {
	result := Result{Job: job}
	advance := func(next State) error {
		advanced, err := result.Job.Advance(next)
		if err != nil {
			return err
		}
		result.Job = advanced
		logger.Debug("job state changed", logging.String(logging.FieldStage, string(next)))
		return nil
	}

	if err := advance(StateNormalizing); err != nil {
		return result, err
	}
	canonical, err := c.deps.Media.Normalize(services.WithStage(ctx, string(StateNormalizing)), job.SourcePath, ws.Dir, canonicalBaseName)
	if err != nil {
		return result, err
	}

	segment, size, err := media.NeedsSegmentation(canonical, c.threshold)
	if err != nil {
		return result, services.Wrap(services.ErrSegmentation, string(StateNormalizing), "inspect canonical audio", "", err)
	}
	c.logExpectedChunks(ctx, logger, canonical, size, segment)

	units := []stt.Unit{{Path: canonical, Index: 0, Total: 1}}
	if segment {
		if err := advance(StateSegmenting); err != nil {
			return result, err
		}
		chunks, err := c.deps.Media.Segment(services.WithStage(ctx, string(StateSegmenting)), canonical, ws.Path("chunks"))
		if err != nil {
			return result, err
		}
		units = make([]stt.Unit, len(chunks))
		for i, chunk := range chunks {
			units[i] = stt.Unit{Path: chunk.Path, Index: i, Total: len(chunks)}
		}
	}
	result.Chunks = len(units)

	if err := advance(StateTranscribing); err != nil {
		return result, err
	}
	transcript, err := c.transcribe(services.WithStage(ctx, string(StateTranscribing)), logger, units)
	if err != nil {
		return result, err
	}

	if err := advance(StateAnalyzing); err != nil {
		return result, err
	}
	derived := c.deps.Analyzer.Analyze(services.WithStage(ctx, string(StateAnalyzing)), transcript)

	if err := advance(StatePersisting); err != nil {
		return result, err
	}
	record := buildRecord(job.FileName, job.Subject, job.CreatedAt, derived)
	record.Size = len(transcript)
	if err := c.deps.Store.Upsert(services.WithStage(ctx, string(StatePersisting)), record, transcript); err != nil {
		logging.WarnWithContext(logger, "record persistence failed", "persist_failed",
			logging.String(logging.FieldRecordName, record.Name),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and free space"),
			logging.String(logging.FieldImpact, "the transcript for this job was not stored"),
		)
	}
	result.Record = &record

	if err := advance(StateCompleted); err != nil {
		return result, err
	}
	return result, nil
}

// transcribe runs units in order and stops at the first failure.
func (c *Coordinator) transcribe(ctx context.Context, logger *slog.Logger, units []stt.Unit) (string, error) {
	parts := make([]stt.ChunkTranscript, 0, len(units))
	total := len(units)
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return "", services.Wrap(services.ErrChunkTranscription, string(StateTranscribing), "transcribe", "job cancelled", err)
		}
		started := time.Now()
		part := c.deps.Transcriber.Transcribe(ctx, unit, total == 1)
		if !part.Success || strings.TrimSpace(part.Text) == "" {
			reason := strings.TrimSpace(part.Error)
			if reason == "" {
				reason = "empty transcript"
			}
			return "", services.Wrap(services.ErrChunkTranscription, string(StateTranscribing),
				fmt.Sprintf("chunk %d/%d", unit.Index+1, total), reason, nil)
		}
		logger.Debug("chunk transcribed",
			logging.Int("chunk", unit.Index+1),
			logging.Int("chunks", total),
			logging.Int("characters", len(part.Text)),
			logging.Duration("duration", time.Since(started)),
		)
		parts = append(parts, part)
	}
	return MergeTranscripts(parts), nil
}

func (c *Coordinator) logExpectedChunks(ctx context.Context, logger *slog.Logger, canonical string, size int64, segment bool) {
	attrs := []logging.Attr{
		logging.Int64("canonical_bytes", size),
		logging.Bool("segmented", segment),
	}
	if segment {
		if duration, err := c.deps.Media.ProbeDuration(ctx, canonical); err == nil {
			attrs = append(attrs,
				logging.Duration("audio_duration", duration),
				logging.Int("expected_chunks", c.deps.Media.ExpectedChunks(duration)),
			)
		} else {
			logger.Debug("duration probe failed", logging.Error(err))
		}
	}
	logger.Info("audio normalized", logging.Args(attrs...)...)
}

// RunText analyses and stores a transcript supplied as text. The record is
// returned even when storing it failed.
func (c *Coordinator) RunText(ctx context.Context, job TextJob) (recordstore.Record, error) {
	text := strings.TrimSpace(job.Text)
	if text == "" {
		return recordstore.Record{}, services.Wrap(services.ErrValidation, "text", "validate", "transcript text is empty", nil)
	}
	subject := job.Subject.Normalized()
	if subject.SubjectID != "" {
		ctx = services.WithSubjectID(ctx, subject.SubjectID)
	}
	logger := logging.WithContext(ctx, c.logger)
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	derived := c.deps.Analyzer.Analyze(services.WithStage(ctx, string(StateAnalyzing)), text)
	record := buildRecord(job.FileName, subject, createdAt, derived)
	record.Size = len(text)
	if err := c.deps.Store.Upsert(services.WithStage(ctx, string(StatePersisting)), record, text); err != nil {
		logging.WarnWithContext(logger, "text record persistence failed", "persist_failed",
			logging.String(logging.FieldRecordName, record.Name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the submitted transcript was not stored"),
		)
		return record, err
	}
	logger.Info("text transcript stored",
		logging.String(logging.FieldEventType, "text_ingested"),
		logging.String(logging.FieldRecordName, record.Name),
		logging.Int("transcript_bytes", record.Size),
	)
	c.reportCompletion(ctx, logger, record)
	return record, nil
}

func buildRecord(fileName string, subject recordstore.SubjectContext, createdAt time.Time, derived analysis.Analysis) recordstore.Record {
	return recordstore.Record{
		Name:      textutil.RecordName(subject.DisplayName, subject.SubjectID, subject.SessionDate),
		FileName:  strings.TrimSpace(fileName),
		CreatedAt: createdAt,
		Metadata:  subject,
		Analysis:  &derived,
	}
}

func (c *Coordinator) reportCompletion(ctx context.Context, logger *slog.Logger, record recordstore.Record) {
	c.track(ctx, logger, func(tctx context.Context) error {
		return c.deps.Tracking.MarkCompleted(tctx, tracking.Update{
			SessionID:   record.Metadata.SessionID,
			RecordName:  record.Name,
			SubjectID:   record.Metadata.SubjectID,
			DisplayName: record.Metadata.DisplayName,
		})
	})
	c.notify(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"recordName":  record.Name,
		"fileName":    record.FileName,
		"displayName": record.Metadata.DisplayName,
	})
	if c.deps.Sweeper != nil && record.Metadata.SubjectID != "" {
		c.deps.Sweeper.TriggerAsync(ctx, record.Metadata.SubjectID, false)
	}
}

func (c *Coordinator) reportFailure(ctx context.Context, logger *slog.Logger, job Job, stage State, err error) {
	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldStage, string(stage)),
		logging.String("file_name", job.FileName),
		logging.Error(err),
		logging.ErrorKind(err),
		logging.Alert("job_failure"),
	)
	message := err.Error()
	if errors.Is(err, context.Canceled) {
		message = "processing was cancelled"
	}
	c.track(ctx, logger, func(tctx context.Context) error {
		return c.deps.Tracking.MarkErrored(tctx, tracking.Update{
			SessionID: job.Subject.SessionID,
			SubjectID: job.Subject.SubjectID,
			Error:     fmt.Sprintf("%s: %s", services.Kind(err), message),
		})
	})
	c.notify(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"fileName": job.FileName,
		"stage":    string(stage),
		"error":    message,
	})
}

// track runs a tracking update detached from job cancellation.
func (c *Coordinator) track(ctx context.Context, logger *slog.Logger, update func(context.Context) error) {
	if err := update(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(logger, "tracking update failed", "tracking_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check tracking.base_url and tracking.token"),
			logging.String(logging.FieldImpact, "the session tracking record shows a stale status"),
		)
	}
}

func (c *Coordinator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := c.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

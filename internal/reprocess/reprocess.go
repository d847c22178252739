package reprocess

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"carescribe/internal/analysis"
	"carescribe/internal/logging"
	"carescribe/internal/notifications"
	"carescribe/internal/recordstore"
	"carescribe/internal/services"
)

// Store is the record access the reprocessor needs.
type Store interface {
	GetAll(ctx context.Context) ([]recordstore.Record, error)
	ListBySubject(ctx context.Context, subjectID string) ([]recordstore.Record, error)
	Get(ctx context.Context, name string) (*recordstore.Record, string, error)
	Upsert(ctx context.Context, record recordstore.Record, transcript string) error
}

// Analyzer produces an analysis for a transcript. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, text string) analysis.Analysis
}

// Result summarizes one Trigger or Bulk run.
type Result struct {
	Subject   string        `json:"subject,omitempty"`
	Skipped   bool          `json:"skipped"`
	Processed []string      `json:"processed"`
	Unchanged int           `json:"unchanged"`
	Busy      int           `json:"busy"`
	Failed    []string      `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// ShouldReprocess reports whether record needs a new analysis. Complete
// records are only redone when force is set.
func ShouldReprocess(record recordstore.Record, force bool) bool {
	return force || !record.Analysis.Complete()
}

// Option configures a Reprocessor.
type Option func(*Reprocessor)

// WithNotifier publishes reprocess_completed after bulk sweeps.
func WithNotifier(notifier notifications.Service) Option {
	return func(r *Reprocessor) {
		if notifier != nil {
			r.notifier = notifier
		}
	}
}

// WithRegistry shares a registry between reprocessors.
func WithRegistry(registry *Registry) Option {
	return func(r *Reprocessor) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// Reprocessor re-runs analysis for stored records.
type Reprocessor struct {
	store    Store
	analyzer Analyzer
	registry *Registry
	notifier notifications.Service
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New constructs a reprocessor.
func New(store Store, analyzer Analyzer, logger *slog.Logger, opts ...Option) *Reprocessor {
	r := &Reprocessor{
		store:    store,
		analyzer: analyzer,
		registry: NewRegistry(),
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "reprocess"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Registry exposes the lock set for status reporting.
func (r *Reprocessor) Registry() *Registry {
	return r.registry
}

// Trigger reprocesses the records of one subject. It returns a Skipped
// result without touching any record when the subject is already being
// reprocessed or a bulk sweep is running.
func (r *Reprocessor) Trigger(ctx context.Context, subjectID string, force bool) Result {
	subjectID = strings.TrimSpace(subjectID)
	if !r.tryLockSubject(subjectID) {
		r.logger.Debug("reprocess skipped", logging.String(logging.FieldSubjectID, subjectID))
		return Result{Subject: subjectID, Skipped: true}
	}
	return r.runSubject(ctx, subjectID, force)
}

// StartSubject locks subjectID before returning and reprocesses its records
// in the background. It fails with services.ErrBusy when the subject is
// locked or a bulk sweep is running.
func (r *Reprocessor) StartSubject(ctx context.Context, subjectID string, force bool) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return services.Wrap(services.ErrValidation, "reprocess", "start subject", "subject id is required", nil)
	}
	if !r.tryLockSubject(subjectID) {
		return services.Wrap(services.ErrBusy, "reprocess", "start subject", "subject "+subjectID+" is already being reprocessed", nil)
	}
	ctx = context.WithoutCancel(ctx)
	r.wg.Go(func() {
		r.runSubject(ctx, subjectID, force)
	})
	return nil
}

func (r *Reprocessor) tryLockSubject(subjectID string) bool {
	return r.registry.TryLockSubjectUnlessBulk(subjectID)
}

// runSubject expects the subject lock to be held and releases it.
func (r *Reprocessor) runSubject(ctx context.Context, subjectID string, force bool) Result {
	defer r.registry.UnlockSubject(subjectID)

	result := Result{Subject: subjectID}
	start := time.Now()
	ctx = services.WithSubjectID(ctx, subjectID)
	records, err := r.store.ListBySubject(ctx, subjectID)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "reprocess listing failed", "reprocess_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "subject records were not reprocessed"),
		)
		result.Skipped = true
		return result
	}
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		r.apply(ctx, record, force, &result)
	}
	result.Duration = time.Since(start)
	r.logger.Info("subject reprocessed",
		logging.String(logging.FieldSubjectID, subjectID),
		logging.Int("processed", len(result.Processed)),
		logging.Int("unchanged", result.Unchanged),
		logging.Int("failed", len(result.Failed)),
	)
	return result
}

// TriggerAsync runs Trigger in the background.
func (r *Reprocessor) TriggerAsync(ctx context.Context, subjectID string, force bool) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Go(func() {
		r.Trigger(ctx, subjectID, force)
	})
}

// Bulk reprocesses every record, or the records of subjectID when it is not
// empty. It fails with services.ErrBusy when another sweep is running.
func (r *Reprocessor) Bulk(ctx context.Context, subjectID string, force bool) (Result, error) {
	if !r.registry.TryBeginBulk() {
		return Result{Subject: strings.TrimSpace(subjectID), Skipped: true}, busyError()
	}
	return r.sweep(ctx, subjectID, force), nil
}

// StartBulk sets the bulk flag before returning and runs the sweep in the
// background. It fails with services.ErrBusy when a sweep is running.
func (r *Reprocessor) StartBulk(ctx context.Context, subjectID string, force bool) error {
	if !r.registry.TryBeginBulk() {
		return busyError()
	}
	ctx = context.WithoutCancel(ctx)
	r.wg.Go(func() {
		r.sweep(ctx, subjectID, force)
	})
	return nil
}

// Wait blocks until background work started by TriggerAsync and StartBulk
// has finished.
func (r *Reprocessor) Wait() {
	r.wg.Wait()
}

func (r *Reprocessor) sweep(ctx context.Context, subjectID string, force bool) Result {
	defer r.registry.EndBulk()

	subjectID = strings.TrimSpace(subjectID)
	result := Result{Subject: subjectID}
	start := time.Now()
	logger := logging.WithContext(ctx, r.logger)

	var (
		records []recordstore.Record
		err     error
	)
	if subjectID == "" {
		records, err = r.store.GetAll(ctx)
	} else {
		records, err = r.store.ListBySubject(ctx, subjectID)
	}
	if err != nil {
		logging.WarnWithContext(logger, "bulk reprocess listing failed", "reprocess_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no records were reprocessed"),
		)
		return result
	}

	logger.Info("bulk reprocess started",
		logging.String(logging.FieldSubjectID, subjectID),
		logging.Int("records", len(records)),
		logging.Bool("force", force),
	)
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		subject := record.Metadata.SubjectID
		if subject == "" {
			r.apply(ctx, record, force, &result)
			continue
		}
		if !r.registry.TryLockSubject(subject) {
			result.Busy++
			continue
		}
		r.apply(services.WithSubjectID(ctx, subject), record, force, &result)
		r.registry.UnlockSubject(subject)
	}
	result.Duration = time.Since(start)

	logger.Info("bulk reprocess finished",
		logging.String(logging.FieldSubjectID, subjectID),
		logging.Int("processed", len(result.Processed)),
		logging.Int("unchanged", result.Unchanged),
		logging.Int("busy", result.Busy),
		logging.Int("failed", len(result.Failed)),
		logging.Duration("duration", result.Duration),
	)
	if err := r.notifier.Publish(ctx, notifications.EventReprocessCompleted, notifications.Payload{
		"subject":   subjectID,
		"processed": len(result.Processed),
		"failed":    len(result.Failed),
		"skipped":   result.Unchanged + result.Busy,
	}); err != nil {
		logger.Debug("reprocess notification failed", logging.Error(err))
	}
	return result
}

func (r *Reprocessor) apply(ctx context.Context, record recordstore.Record, force bool, result *Result) {
	if !ShouldReprocess(record, force) {
		result.Unchanged++
		return
	}
	if err := r.reprocessRecord(ctx, record); err != nil {
		result.Failed = append(result.Failed, record.Name)
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "record reprocess failed", "reprocess_record_failed",
			logging.String(logging.FieldRecordName, record.Name),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "record keeps its previous analysis"),
		)
		return
	}
	result.Processed = append(result.Processed, record.Name)
}

func (r *Reprocessor) reprocessRecord(ctx context.Context, record recordstore.Record) error {
	stored, transcript, err := r.store.Get(ctx, record.Name)
	if err != nil {
		return err
	}
	if stored == nil || strings.TrimSpace(transcript) == "" {
		return services.Wrap(services.ErrNotFound, "reprocess", "load transcript", record.Name, nil)
	}
	result := r.analyzer.Analyze(ctx, transcript)
	updated := *stored
	if updated.Metadata == (recordstore.SubjectContext{}) {
		updated.Metadata = record.Metadata
	}
	updated.Analysis = &result
	return r.store.Upsert(ctx, updated, transcript)
}

func busyError() error {
	return services.Wrap(services.ErrBusy, "reprocess", "begin bulk", "a bulk reprocess is already running", nil)
}

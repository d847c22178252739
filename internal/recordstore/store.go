package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"carescribe/internal/config"
	"carescribe/internal/fileutil"
	"carescribe/internal/logging"
	"carescribe/internal/services"
)

const lockRetryDelay = 25 * time.Millisecond

// Mirror is the durable copy of the record set.
type Mirror interface {
	Upsert(ctx context.Context, record Record, transcript string) error
	Get(ctx context.Context, name string) (*Record, string, error)
	All(ctx context.Context) ([]Record, error)
	Close() error
}

// Store reads and writes records.
type Store struct {
	docPath        string
	transcriptsDir string
	fileLock       *flock.Flock
	mirror         Mirror
	logger         *slog.Logger

	mu sync.Mutex
}

// Open builds the store described by cfg. When the durable mirror is enabled
// but cannot be opened the store runs without it and logs a warning.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "recordstore")
	var mirror Mirror
	if cfg.Store.DurableEnabled {
		sqliteMirror, err := OpenSQLite(cfg.DatabasePath())
		if err != nil {
			logging.WarnWithContext(logger, "durable mirror unavailable", "mirror_open_failed",
				logging.Error(err),
				logging.String("path", cfg.DatabasePath()),
				logging.String(logging.FieldErrorHint, "check data_dir permissions or delete the database after a schema change"),
				logging.String(logging.FieldImpact, "records are kept in the local document only"),
			)
		} else {
			mirror = sqliteMirror
		}
	}
	return New(cfg.RecordsDocumentPath(), cfg.TranscriptsDir(), mirror, logger)
}

// New builds a store over an explicit document path and transcript
// directory. mirror may be nil.
func New(docPath, transcriptsDir string, mirror Mirror, logger *slog.Logger) (*Store, error) {
	docPath = strings.TrimSpace(docPath)
	transcriptsDir = strings.TrimSpace(transcriptsDir)
	if docPath == "" || transcriptsDir == "" {
		return nil, errors.New("recordstore: document path and transcripts dir are required")
	}
	if err := os.MkdirAll(transcriptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		docPath:        docPath,
		transcriptsDir: transcriptsDir,
		fileLock:       flock.New(docPath + ".lock"),
		mirror:         mirror,
		logger:         logger,
	}, nil
}

// Close releases the mirror.
func (s *Store) Close() error {
	if s == nil || s.mirror == nil {
		return nil
	}
	return s.mirror.Close()
}

// Upsert stores record and its transcript under record.Name, replacing any
// existing entry. Size is set from the transcript. Only local failures are
// returned; mirror failures are logged.
func (s *Store) Upsert(ctx context.Context, record Record, transcript string) error {
	name, err := checkName(record.Name)
	if err != nil {
		return err
	}
	record.Name = name
	record.Size = len(transcript)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	staged, err := fileutil.Stage(s.transcriptPath(name), []byte(transcript), 0o644)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "persisting", "write transcript", name, err)
	}
	defer staged.Discard()
	if err := s.updateDocument(ctx, func(doc map[string]documentEntry) {
		doc[name] = record.entry()
	}, staged.Commit); err != nil {
		return services.Wrap(services.ErrPersistence, "persisting", "write document", name, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Upsert(ctx, record, transcript); err != nil {
			err = services.Wrap(services.ErrPersistence, "persisting", "mirror upsert", name, err)
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "durable mirror write failed", "mirror_write_failed",
				logging.String(logging.FieldRecordName, name),
				logging.Error(err),
				logging.ErrorKind(err),
				logging.String(logging.FieldErrorHint, "check the records database; the next successful write resynchronizes it"),
				logging.String(logging.FieldImpact, "durable mirror diverges from the local document"),
			)
		}
	}
	return nil
}

// GetAll returns every record, newest first. Records known only to the
// mirror are included.
func (s *Store) GetAll(ctx context.Context) ([]Record, error) {
	doc, err := s.readDocument(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "records", "read document", "", err)
	}
	records := make([]Record, 0, len(doc))
	for name, entry := range doc {
		records = append(records, entry.record(name))
	}
	if s.mirror != nil {
		mirrored, err := s.mirror.All(ctx)
		if err != nil {
			s.logger.Debug("mirror listing failed", logging.Error(err))
		}
		for _, record := range mirrored {
			if _, ok := doc[record.Name]; !ok {
				records = append(records, record)
			}
		}
	}
	sortRecords(records)
	return records, nil
}

// Get returns the record and transcript stored under name. A nil record with
// a nil error means nothing is stored under that name.
func (s *Store) Get(ctx context.Context, name string) (*Record, string, error) {
	name, err := checkName(name)
	if err != nil {
		return nil, "", err
	}

	var (
		doc            map[string]documentEntry
		transcript     string
		haveTranscript bool
	)
	err = s.withReadLock(ctx, func() error {
		var err error
		if transcript, haveTranscript, err = s.readTranscript(name); err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		if doc, err = loadDocument(s.docPath); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, "", services.Wrap(services.ErrPersistence, "records", "read record", name, err)
	}
	if entry, ok := doc[name]; ok {
		record := entry.record(name)
		return &record, transcript, nil
	}

	if s.mirror != nil {
		record, mirroredText, err := s.mirror.Get(ctx, name)
		if err != nil {
			s.logger.Debug("mirror lookup failed", logging.String(logging.FieldRecordName, name), logging.Error(err))
		} else if record != nil {
			if !haveTranscript {
				transcript = mirroredText
			}
			return record, transcript, nil
		}
	}

	if haveTranscript {
		return &Record{Name: name, Size: len(transcript)}, transcript, nil
	}
	return nil, "", nil
}

// ListBySubject returns the records whose metadata names subjectID.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	subjectID = strings.TrimSpace(subjectID)
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if subjectID == "" {
		return all, nil
	}
	matches := make([]Record, 0)
	for _, record := range all {
		if record.Metadata.SubjectID == subjectID {
			matches = append(matches, record)
		}
	}
	return matches, nil
}

func (s *Store) transcriptPath(name string) string {
	return filepath.Join(s.transcriptsDir, name+".txt")
}

func (s *Store) readTranscript(name string) (string, bool, error) {
	data, err := os.ReadFile(s.transcriptPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// updateDocument applies mutate to the document while holding the exclusive
// lock. When commit is set it runs after the document is written; if it
// fails the previous document is restored.
func (s *Store) updateDocument(ctx context.Context, mutate func(map[string]documentEntry), commit func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock records document: %w", err)
	}
	if !locked {
		return errors.New("lock records document: not acquired")
	}
	defer func() { _ = s.fileLock.Unlock() }()

	previous, existed, err := readDocumentFile(s.docPath)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(previous)
	if err != nil {
		return err
	}
	mutate(doc)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records document: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.docPath, data, 0o644); err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	if err := commit(); err != nil {
		if restoreErr := s.restoreDocument(previous, existed); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("restore records document: %w", restoreErr))
		}
		return err
	}
	return nil
}

func (s *Store) restoreDocument(previous []byte, existed bool) error {
	if !existed {
		if err := os.Remove(s.docPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return fileutil.WriteFileAtomic(s.docPath, previous, 0o644)
}

func (s *Store) withReadLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.fileLock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock records document: %w", err)
	}
	if !locked {
		return errors.New("lock records document: not acquired")
	}
	defer func() { _ = s.fileLock.Unlock() }()

	return fn()
}

func (s *Store) readDocument(ctx context.Context) (map[string]documentEntry, error) {
	var doc map[string]documentEntry
	err := s.withReadLock(ctx, func() error {
		var err error
		doc, err = loadDocument(s.docPath)
		return err
	})
	return doc, err
}

func loadDocument(path string) (map[string]documentEntry, error) {
	data, _, err := readDocumentFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func readDocumentFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read records document: %w", err)
	}
	return data, true, nil
}

func decodeDocument(data []byte) (map[string]documentEntry, error) {
	doc := make(map[string]documentEntry)
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode records document: %w", err)
	}
	return doc, nil
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", services.Wrap(services.ErrValidation, "records", "check name", fmt.Sprintf("invalid record name %q", name), nil)
	}
	return name, nil
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].Name < records[j].Name
	})
}

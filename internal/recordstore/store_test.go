package recordstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"carescribe/internal/analysis"
	"carescribe/internal/logging"
	"carescribe/internal/services"
)

type failingMirror struct {
	mu      sync.Mutex
	upserts int
	records map[string]Record
}

func (f *failingMirror) Upsert(context.Context, Record, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return errors.New("database is locked")
}

func (f *failingMirror) Get(_ context.Context, name string) (*Record, string, error) {
	if record, ok := f.records[name]; ok {
		return &record, "mirrored transcript", nil
	}
	return nil, "", nil
}

func (f *failingMirror) All(context.Context) ([]Record, error) {
	out := make([]Record, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func (f *failingMirror) Close() error { return nil }

func newTestStore(t *testing.T, mirror Mirror) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "records.json"), filepath.Join(dir, "transcripts"), mirror, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, dir
}

func sampleRecord(name, subject string) Record {
	fallback := analysis.Fallback()
	return Record{
		Name:      name,
		FileName:  "session.mp3",
		CreatedAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		Metadata:  SubjectContext{SubjectID: subject, DisplayName: "Ann Lee", SessionDate: "2025-03-14"},
		Analysis:  &fallback,
	}
}

func TestUpsertAndGet(t *testing.T) {
	store, dir := newTestStore(t, nil)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleRecord("ann-lee_s1_2025-03-14", "s1"), "hello world"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	record, transcript, err := store.Get(ctx, "ann-lee_s1_2025-03-14")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record == nil || transcript != "hello world" {
		t.Fatalf("unexpected get result %+v %q", record, transcript)
	}
	if record.Size != len("hello world") {
		t.Fatalf("expected size %d, got %d", len("hello world"), record.Size)
	}
	if record.Analysis == nil || record.Analysis.Summary != analysis.FallbackSummary {
		t.Fatalf("analysis not stored: %+v", record.Analysis)
	}
	if _, err := os.Stat(filepath.Join(dir, "transcripts", "ann-lee_s1_2025-03-14.txt")); err != nil {
		t.Fatalf("expected transcript file: %v", err)
	}
}

func TestUpsertOverwritesByName(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()

	first := sampleRecord("r1", "s1")
	if err := store.Upsert(ctx, first, "one"); err != nil {
		t.Fatal(err)
	}
	second := sampleRecord("r1", "s1")
	second.Analysis = nil
	if err := store.Upsert(ctx, second, "three"); err != nil {
		t.Fatal(err)
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Size != 5 || all[0].Analysis != nil {
		t.Fatalf("unexpected records %+v", all)
	}
}

func TestFailedUpsertLeavesPreviousRecordIntact(t *testing.T) {
	store, dir := newTestStore(t, nil)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleRecord("r1", "s1"), "old transcript"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	replacement := sampleRecord("r1", "s1")
	replacement.FileName = "retake.mp3"
	if err := store.Upsert(cancelled, replacement, "brand new transcript text"); !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err := store.Upsert(cancelled, sampleRecord("r2", "s1"), "never stored"); err == nil {
		t.Fatal("expected error for cancelled upsert")
	}

	record, transcript, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.FileName != "session.mp3" || record.Size != len("old transcript") || transcript != "old transcript" {
		t.Fatalf("record changed by failed upsert: %+v %q", record, transcript)
	}
	if record, transcript, err := store.Get(ctx, "r2"); err != nil || record != nil || transcript != "" {
		t.Fatalf("expected nothing stored for r2, got %+v %q %v", record, transcript, err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "r1.txt" {
		t.Fatalf("expected only r1.txt in transcripts, found %v", entries)
	}
}

func TestUpsertRestoresDocumentWhenTranscriptCannotBePlaced(t *testing.T) {
	store, dir := newTestStore(t, nil)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleRecord("r1", "s1"), "kept"); err != nil {
		t.Fatal(err)
	}
	// A non-empty directory at the transcript path makes the final rename fail.
	blocked := filepath.Join(dir, "transcripts", "r2.txt")
	if err := os.MkdirAll(filepath.Join(blocked, "inner"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := store.Upsert(ctx, sampleRecord("r2", "s2"), "lost"); !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Name != "r1" {
		t.Fatalf("expected document rolled back to r1 only, got %+v", all)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store, _ := newTestStore(t, nil)
	record, transcript, err := store.Get(context.Background(), "nobody")
	if err != nil || record != nil || transcript != "" {
		t.Fatalf("expected empty result, got %+v %q %v", record, transcript, err)
	}
}

func TestGetTranscriptWithoutMetadata(t *testing.T) {
	store, dir := newTestStore(t, nil)
	if err := os.WriteFile(filepath.Join(dir, "transcripts", "orphan.txt"), []byte("body"), 0o644); err != nil {
		t.Fatal(err)
	}
	record, transcript, err := store.Get(context.Background(), "orphan")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.Name != "orphan" || transcript != "body" || record.Analysis != nil {
		t.Fatalf("unexpected result %+v %q", record, transcript)
	}
}

func TestInvalidNamesRejected(t *testing.T) {
	store, _ := newTestStore(t, nil)
	for _, name := range []string{"", " ", "..", "a/b", `a\b`} {
		if err := store.Upsert(context.Background(), Record{Name: name}, "x"); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Upsert(%q): expected validation error, got %v", name, err)
		}
	}
}

func TestMirrorFailureIsNotFatal(t *testing.T) {
	mirror := &failingMirror{}
	store, _ := newTestStore(t, mirror)

	if err := store.Upsert(context.Background(), sampleRecord("r1", "s1"), "text"); err != nil {
		t.Fatalf("mirror failure must not fail Upsert: %v", err)
	}
	if mirror.upserts != 1 {
		t.Fatalf("expected mirror to be called once, got %d", mirror.upserts)
	}
	if record, _, _ := store.Get(context.Background(), "r1"); record == nil {
		t.Fatal("local record missing")
	}
}

func TestGetFallsBackToMirror(t *testing.T) {
	mirror := &failingMirror{records: map[string]Record{"old": sampleRecord("old", "s9")}}
	store, _ := newTestStore(t, mirror)

	record, transcript, err := store.Get(context.Background(), "old")
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.Metadata.SubjectID != "s9" || transcript != "mirrored transcript" {
		t.Fatalf("unexpected mirror result %+v %q", record, transcript)
	}

	all, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Name != "old" {
		t.Fatalf("expected mirror-only record in listing, got %+v", all)
	}
}

func TestListBySubject(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()
	for i, subject := range []string{"s1", "s2", "s1"} {
		record := sampleRecord(fmt.Sprintf("r%d", i), subject)
		record.CreatedAt = record.CreatedAt.Add(time.Duration(i) * time.Hour)
		if err := store.Upsert(ctx, record, "t"); err != nil {
			t.Fatal(err)
		}
	}
	records, err := store.ListBySubject(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Name != "r2" || records[1].Name != "r0" {
		t.Fatalf("unexpected subject records %+v", records)
	}
}

func TestConcurrentWritersKeepEveryRecord(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "records.json")
	transcripts := filepath.Join(dir, "transcripts")

	// Two stores over the same files stand in for two processes.
	stores := make([]*Store, 2)
	for i := range stores {
		store, err := New(docPath, transcripts, nil, logging.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		stores[i] = store
	}

	const perStore = 20
	var wg sync.WaitGroup
	for s, store := range stores {
		for i := range perStore {
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("store%d-record%02d", s, i)
				if err := store.Upsert(context.Background(), sampleRecord(name, "s"), name); err != nil {
					t.Errorf("Upsert %s: %v", name, err)
				}
			}()
		}
	}
	wg.Wait()

	all, err := stores[0].GetAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2*perStore {
		t.Fatalf("expected %d records, got %d", 2*perStore, len(all))
	}
}

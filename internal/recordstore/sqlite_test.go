package recordstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"carescribe/internal/analysis"
)

func openTestMirror(t *testing.T) *SQLiteMirror {
	t.Helper()
	mirror, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = mirror.Close() })
	return mirror
}

func TestSQLiteMirrorRoundTrip(t *testing.T) {
	mirror := openTestMirror(t)
	ctx := context.Background()

	record := sampleRecord("ann-lee_s1_2025-03-14", "s1")
	record.Size = 5
	if err := mirror.Upsert(ctx, record, "hello"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, transcript, err := mirror.Get(ctx, record.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || transcript != "hello" {
		t.Fatalf("unexpected row %+v %q", got, transcript)
	}
	if !got.CreatedAt.Equal(record.CreatedAt) || got.Metadata != record.Metadata || got.Size != 5 {
		t.Fatalf("row mismatch: %+v", got)
	}
	if got.Analysis == nil || got.Analysis.Summary != analysis.FallbackSummary {
		t.Fatalf("analysis mismatch: %+v", got.Analysis)
	}

	record.Analysis = nil
	if err := mirror.Upsert(ctx, record, "updated"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	all, err := mirror.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Analysis != nil {
		t.Fatalf("expected single updated row, got %+v", all)
	}

	missing, _, err := mirror.Get(ctx, "missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing row, got %+v %v", missing, err)
	}
}

func TestSQLiteMirrorListingSkipsTranscripts(t *testing.T) {
	query, _, err := listQuery().ToSql()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(query, "transcript") {
		t.Fatalf("listing query selects transcripts: %s", query)
	}

	mirror := openTestMirror(t)
	ctx := context.Background()
	for _, name := range []string{"r1", "r2"} {
		if err := mirror.Upsert(ctx, sampleRecord(name, "s1"), strings.Repeat("x", 4096)); err != nil {
			t.Fatal(err)
		}
	}
	all, err := mirror.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "r1" || all[1].Name != "r2" {
		t.Fatalf("unexpected listing %+v", all)
	}
}

func TestSQLiteMirrorRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	mirror, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mirror.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = mirror.Close()

	if _, err := OpenSQLite(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestStoreWritesThroughToSQLite(t *testing.T) {
	mirror := openTestMirror(t)
	store, _ := newTestStore(t, mirror)
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleRecord("r1", "s1"), "body text"); err != nil {
		t.Fatal(err)
	}
	row, transcript, err := mirror.Get(ctx, "r1")
	if err != nil || row == nil {
		t.Fatalf("expected mirrored row, got %+v %v", row, err)
	}
	if transcript != "body text" || row.Size != len("body text") {
		t.Fatalf("unexpected mirrored content %q size=%d", transcript, row.Size)
	}
}

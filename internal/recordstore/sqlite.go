package recordstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"carescribe/internal/analysis"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current mirror schema version. Bump it when schema.sql
// changes; older databases must be deleted and are rebuilt on the next writes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

var metadataColumns = []string{
	"name", "file_name", "size", "created_at", "subject_id", "metadata_json", "analysis_json",
}

// SQLiteMirror is the durable record mirror.
type SQLiteMirror struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the mirror database at path.
func OpenSQLite(path string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	mirror := &SQLiteMirror{db: db, path: path}
	if err := mirror.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return mirror, nil
}

// Path returns the database file location.
func (m *SQLiteMirror) Path() string {
	return m.path
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *SQLiteMirror) initSchema(ctx context.Context) error {
	var tableExists int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return m.createSchema(ctx)
	}

	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild it)",
			ErrSchemaMismatch, version, schemaVersion, m.path)
	}
	return nil
}

func (m *SQLiteMirror) createSchema(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for record.Name.
func (m *SQLiteMirror) Upsert(ctx context.Context, record Record, transcript string) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var analysisJSON any
	if record.Analysis != nil {
		encoded, err := json.Marshal(record.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysisJSON = string(encoded)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	query, args, err := sq.Insert("records").
		Columns(append(append([]string(nil), metadataColumns...), "transcript", "updated_at")...).
		Values(
			record.Name,
			nullableString(record.FileName),
			record.Size,
			record.CreatedAt.UTC().Format(time.RFC3339Nano),
			nullableString(record.Metadata.SubjectID),
			string(metadataJSON),
			analysisJSON,
			transcript,
			now,
		).
		Suffix(`ON CONFLICT(name) DO UPDATE SET
            file_name = excluded.file_name,
            size = excluded.size,
            created_at = excluded.created_at,
            subject_id = excluded.subject_id,
            metadata_json = excluded.metadata_json,
            analysis_json = excluded.analysis_json,
            transcript = excluded.transcript,
            updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Get returns the row stored under name, or nil when absent.
func (m *SQLiteMirror) Get(ctx context.Context, name string) (*Record, string, error) {
	query, args, err := sq.Select(metadataColumns...).Column("transcript").From("records").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return nil, "", fmt.Errorf("build select: %w", err)
	}
	var transcript string
	record, err := scanRecord(m.db.QueryRowContext(ctx, query, args...), &transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &record, transcript, nil
}

// All returns every mirrored record without transcripts.
func (m *SQLiteMirror) All(ctx context.Context) ([]Record, error) {
	query, args, err := listQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func listQuery() sq.SelectBuilder {
	return sq.Select(metadataColumns...).From("records").OrderBy("created_at DESC", "name")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the metadata columns followed by any extra columns the
// query selected.
func scanRecord(row rowScanner, extra ...any) (Record, error) {
	var (
		record       Record
		fileName     sql.NullString
		createdAt    string
		subjectID    sql.NullString
		metadataJSON string
		analysisJSON sql.NullString
	)
	dest := append([]any{&record.Name, &fileName, &record.Size, &createdAt, &subjectID, &metadataJSON, &analysisJSON}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	record.FileName = fileName.String
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		record.CreatedAt = parsed
	}
	if err := json.Unmarshal([]byte(metadataJSON), &record.Metadata); err != nil {
		return Record{}, fmt.Errorf("decode metadata for %s: %w", record.Name, err)
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		var a analysis.Analysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &a); err != nil {
			return Record{}, fmt.Errorf("decode analysis for %s: %w", record.Name, err)
		}
		record.Analysis = &a
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

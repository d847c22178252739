// Package recordstore persists transcription records.
//
// Every record lives in two places. The local store is a single JSON document
// mapping record name to metadata and analysis, with transcript bodies stored
// beside it as transcripts/<name>.txt. Writes to the document are serialized
// by an in-process mutex and a gofrs/flock file lock, and the document is
// replaced atomically. The durable mirror is a SQLite database (modernc.org/
// sqlite, queries built with squirrel) that is written best-effort: failures
// are logged and the local store stays authoritative.
//
// Get looks for the transcript body first, then the local document, and falls
// back to the mirror when the document has no entry.
package recordstore

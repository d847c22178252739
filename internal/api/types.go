package api

import (
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/reprocess"
)

// JobAccepted is returned for a queued media upload.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// RecordList is the body of GET /api/records.
type RecordList struct {
	Records []recordstore.Record `json:"records"`
}

// RecordDetail is the body of GET /api/records/:name.
type RecordDetail struct {
	Record     recordstore.Record `json:"record"`
	Transcript string             `json:"transcript"`
}

// ReprocessAccepted is returned when a reprocess run starts.
type ReprocessAccepted struct {
	Status  string `json:"status"`
	Subject string `json:"subject,omitempty"`
	Force   bool   `json:"force"`
}

// Status is the body of GET /api/status.
type Status struct {
	Version    string             `json:"version"`
	Dispatcher pipeline.Stats     `json:"dispatcher"`
	Reprocess  reprocess.Snapshot `json:"reprocess"`
	Records    int                `json:"records"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Package api exposes the pipeline over HTTP using echo.
//
// Routes:
//
//	POST /api/transcriptions                 upload media, 202 with a job id
//	POST /api/transcriptions/text            submit a transcript, 201 with the record
//	GET  /api/records                        list records (optional ?subject=)
//	GET  /api/records/export.xlsx            spreadsheet of all records
//	GET  /api/records/:name                  one record with its transcript
//	POST /api/reprocess/subjects/:id         reprocess one subject (?force=)
//	POST /api/reprocess                      bulk sweep (?subject=&force=)
//	GET  /api/status                         dispatcher, lock and record counts
//	GET  /health                             liveness
//
// Errors are JSON objects with an "error" field. Status codes follow the
// services error markers: validation 400, not found 404, busy 409.
package api

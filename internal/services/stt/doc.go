// Package stt is the speech-to-text client used by the transcription stage.
//
// A unit of audio is sent with the file-upload-then-generate contract of the
// Gemini REST API: the WAV bytes are uploaded to the files endpoint, then a
// generateContent request references the uploaded file and asks for a
// verbatim transcript. The uploaded file is deleted afterwards on a best-effort
// basis.
//
// Transcribe never returns a Go error. Failures produce a placeholder
// ChunkTranscript with Success=false and the error text embedded, so callers
// handle every outcome through one type.
//
// Where the transcript lives in the response differs between API versions.
// extractText is the only place that knows about those shapes.
package stt

// Package language normalizes the transcription language setting.
//
// Operators may write a two-letter code, a three-letter code or the
// language name ("es", "spa", "Spanish", "español"); the configuration keeps
// the ISO 639-1 form and the speech-to-text prompt uses the display name.
package language

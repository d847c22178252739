// Package analysis derives the structured session analysis from a transcript.
//
// Analyze sends a fixed instruction template plus the transcript to the
// language-understanding service and normalizes the answer: at most ten
// keywords, five topics, three summary sentences, and three to five
// actionable insights, with sentiment shares rescaled to sum to one.
//
// Analyze never fails. Any service, decoding, or validation error is logged
// and replaced by Fallback(), a clearly marked low-confidence result, so the
// transcript is always persisted.
package analysis

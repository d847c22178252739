package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrConversion         = errors.New("conversion error")
	ErrTimeout            = errors.New("timeout")
	ErrSegmentation       = errors.New("segmentation error")
	ErrChunkTranscription = errors.New("chunk transcription error")
	ErrAnalysis           = errors.New("analysis error")
	ErrPersistence        = errors.New("persistence error")
	ErrExternalTool       = errors.New("external tool error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrBusy               = errors.New("busy")
	ErrTransient          = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the first marker matched by err. The label is
// written to logs and to the tracking record when a job fails.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConversion):
		return "conversion"
	case errors.Is(err, ErrSegmentation):
		return "segmentation"
	case errors.Is(err, ErrChunkTranscription):
		return "chunk_transcription"
	case errors.Is(err, ErrAnalysis):
		return "analysis"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "transient"
	}
}

// Fatal reports whether err aborts a pipeline job. Analysis and persistence
// failures are recovered inside the pipeline and never end a job.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAnalysis) && !errors.Is(err, ErrPersistence)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package pipeline

import (
	"strings"

	"carescribe/internal/services/stt"
)

// chunkSeparator joins consecutive chunk transcripts.
const chunkSeparator = "\n\n"

// MergeTranscripts joins chunk texts in the order given, unchanged.
func MergeTranscripts(parts []stt.ChunkTranscript) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, chunkSeparator)
}

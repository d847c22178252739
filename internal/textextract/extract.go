package textextract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"carescribe/internal/services"
)

// DefaultMaxBytes bounds the size of an uploaded transcript file.
const DefaultMaxBytes int64 = 20 * 1024 * 1024

// Supported reports whether files with extension ext can be extracted.
func Supported(ext string) bool {
	switch normalizeExt(ext) {
	case "txt", "docx", "html", "htm":
		return true
	default:
		return false
	}
}

// Extract reads r, which holds the contents of fileName, and returns its
// text. The format is chosen from the file extension. Inputs larger than
// maxBytes (DefaultMaxBytes when maxBytes <= 0) are rejected.
func Extract(fileName string, r io.Reader, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	ext := normalizeExt(filepath.Ext(fileName))
	if !Supported(ext) {
		return "", services.Wrap(services.ErrValidation, "text", "extract",
			fmt.Sprintf("unsupported transcript file type %q", filepath.Ext(fileName)), nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "text", "read upload", fileName, err)
	}
	if int64(len(data)) > maxBytes {
		return "", services.Wrap(services.ErrValidation, "text", "read upload",
			fmt.Sprintf("%s exceeds %d bytes", fileName, maxBytes), nil)
	}

	var text string
	switch ext {
	case "txt":
		text = plainText(data)
	case "docx":
		text, err = docxText(data)
	case "html", "htm":
		text, err = htmlText(data)
	}
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "text", "extract "+ext, fileName, err)
	}
	text = tidy(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "text", "extract "+ext, fileName+" contains no text", nil)
	}
	return text, nil
}

func plainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(data)
}

// tidy normalizes line endings, trims each line and collapses runs of blank
// lines to one.
func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

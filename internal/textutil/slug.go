package textutil

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackRecordName is used when a session carries no identifying fields.
const FallbackRecordName = "unassigned-session"

var sessionDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006/01/02",
	"02/01/2006",
	"02.01.2006",
}

var lowerCaser = cases.Lower(language.Und)

// RecordName derives the deterministic record identifier for a session.
// Each non-empty part is folded to ASCII, lowercased and collapsed to
// dash-separated alphanumerics; parts are joined with "_".
func RecordName(displayName, subjectID, sessionDate string) string {
	parts := make([]string, 0, 3)
	if slug := Slugify(displayName); slug != "" {
		parts = append(parts, slug)
	}
	if slug := Slugify(subjectID); slug != "" {
		parts = append(parts, slug)
	}
	if date := NormalizeSessionDate(sessionDate); date != "" {
		if slug := Slugify(date); slug != "" {
			parts = append(parts, slug)
		}
	}
	if len(parts) == 0 {
		return FallbackRecordName
	}
	return strings.Join(parts, "_")
}

// Slugify folds accents, lowercases, and replaces runs of anything other than
// ASCII letters and digits with a single dash.
func Slugify(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	folded := foldAccents(value)
	folded = lowerCaser.String(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// NormalizeSessionDate renders recognised date inputs as YYYY-MM-DD and
// returns other values trimmed but otherwise unchanged.
func NormalizeSessionDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range sessionDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return value
}

func foldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

package textutil

import "testing"

func TestRecordName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		subjectID   string
		sessionDate string
		want        string
	}{
		{"all parts", "María José Núñez", "STU-042", "2025-03-14", "maria-jose-nunez_stu-042_2025-03-14"},
		{"rfc3339 date", "Ann Lee", "7", "2025-03-14T09:30:00Z", "ann-lee_7_2025-03-14"},
		{"slash date", "Ann Lee", "", "2025/03/14", "ann-lee_2025-03-14"},
		{"punctuation collapsed", "  O'Brien,   Liam!! ", "a  b", "", "o-brien-liam_a-b"},
		{"unparseable date slugged", "", "", "next Tuesday", "next-tuesday"},
		{"empty parts", "", "", "", FallbackRecordName},
		{"only symbols", "!!!", "   ", "", FallbackRecordName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordName(tt.displayName, tt.subjectID, tt.sessionDate); got != tt.want {
				t.Fatalf("RecordName(%q, %q, %q) = %q, want %q", tt.displayName, tt.subjectID, tt.sessionDate, got, tt.want)
			}
		})
	}
}

func TestRecordNameIsDeterministic(t *testing.T) {
	first := RecordName("Zoë Çelik", "S1", "14.03.2025")
	for range 5 {
		if got := RecordName("Zoë Çelik", "S1", "14.03.2025"); got != first {
			t.Fatalf("expected stable name %q, got %q", first, got)
		}
	}
	if first != "zoe-celik_s1_2025-03-14" {
		t.Fatalf("unexpected name %q", first)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(` a/b:c?"d" `); got != "a-b-cd" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	if got := SanitizeFileName("   "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

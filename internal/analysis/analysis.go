package analysis

import (
	"strings"
	"unicode"
)

// Limits applied to every analysis, and the summary used by Fallback.
const (
	MaxKeywords     = 10
	MaxTopics       = 5
	MaxSummary      = 3
	MinInsights     = 3
	MaxInsights     = 5
	FallbackSummary = "Automatic analysis failed for this session. The transcript was saved and should be reviewed manually."
)

var (
	fallbackKeywords = []string{"session", "follow-up", "review"}
	fallbackTopics   = []string{"general session"}
	genericInsights  = []string{
		"Review the full transcript with the care team.",
		"Confirm agreed next steps with the subject.",
		"Schedule a follow-up session if concerns remain.",
		"Record any changes to the support plan.",
		"Share relevant notes with the linked program coordinator.",
	}
)

// Sentiments holds the share of positive, neutral, and negative tone.
type Sentiments struct {
	Positive float64 `json:"positive" yaml:"positive"`
	Neutral  float64 `json:"neutral" yaml:"neutral"`
	Negative float64 `json:"negative" yaml:"negative"`
}

// Sum returns the total of the three shares.
func (s Sentiments) Sum() float64 {
	return s.Positive + s.Neutral + s.Negative
}

// Analysis is the structured result stored with every record.
type Analysis struct {
	Sentiments         *Sentiments `json:"sentiments,omitempty" yaml:"sentiments,omitempty"`
	Keywords           []string    `json:"keywords" yaml:"keywords"`
	Topics             []string    `json:"topics" yaml:"topics"`
	Summary            string      `json:"summary" yaml:"summary"`
	ActionableInsights []string    `json:"actionableInsights" yaml:"actionable_insights"`
	Fallback           bool        `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Complete reports whether the essential derived fields are present.
func (a *Analysis) Complete() bool {
	return a != nil && a.Sentiments != nil && strings.TrimSpace(a.Summary) != ""
}

// Fallback returns the fixed low-confidence analysis used when the service is
// unavailable.
func Fallback() Analysis {
	return Analysis{
		Sentiments:         &Sentiments{Positive: 0.33, Neutral: 0.34, Negative: 0.33},
		Keywords:           append([]string(nil), fallbackKeywords...),
		Topics:             append([]string(nil), fallbackTopics...),
		Summary:            FallbackSummary,
		ActionableInsights: append([]string(nil), genericInsights[:MinInsights]...),
		Fallback:           true,
	}
}

// Clamp enforces the size and range limits on a service answer.
func Clamp(in Analysis) Analysis {
	out := Analysis{
		Keywords:           cleanList(in.Keywords, MaxKeywords),
		Topics:             cleanList(in.Topics, MaxTopics),
		Summary:            limitSentences(in.Summary, MaxSummary),
		ActionableInsights: cleanList(in.ActionableInsights, MaxInsights),
		Fallback:           in.Fallback,
	}
	for _, generic := range genericInsights {
		if len(out.ActionableInsights) >= MinInsights {
			break
		}
		if !containsFold(out.ActionableInsights, generic) {
			out.ActionableInsights = append(out.ActionableInsights, generic)
		}
	}
	if in.Sentiments != nil {
		normalized := normalizeSentiments(*in.Sentiments)
		out.Sentiments = &normalized
	}
	return out
}

func normalizeSentiments(s Sentiments) Sentiments {
	clampShare := func(v float64) float64 {
		if v < 0 || v != v {
			return 0
		}
		return v
	}
	s = Sentiments{Positive: clampShare(s.Positive), Neutral: clampShare(s.Neutral), Negative: clampShare(s.Negative)}
	total := s.Sum()
	if total <= 0 {
		return *Fallback().Sentiments
	}
	return Sentiments{
		Positive: s.Positive / total,
		Neutral:  s.Neutral / total,
		Negative: s.Negative / total,
	}
}

func cleanList(values []string, limit int) []string {
	out := make([]string, 0, min(len(values), limit))
	for _, value := range values {
		value = strings.Join(strings.Fields(value), " ")
		if value == "" || containsFold(out, value) {
			continue
		}
		out = append(out, value)
		if len(out) == limit {
			break
		}
	}
	return out
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

// limitSentences keeps the first n sentences. A sentence ends at '.', '!' or
// '?' followed by whitespace or the end of the text.
func limitSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return text
}

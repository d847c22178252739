package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carescribe/internal/logging"
	"carescribe/internal/services"
	"carescribe/internal/services/llm"
)

const maxTranscriptRunes = 120_000

// SystemPrompt is the fixed instruction template sent with every transcript.
const SystemPrompt = `You analyze transcripts of care and support sessions.
Respond with a single JSON object and nothing else, using exactly these fields:
{
  "sentiments": {"positive": number, "neutral": number, "negative": number},
  "keywords": [string],
  "topics": [string],
  "summary": string,
  "actionableInsights": [string]
}
Rules:
- sentiments are fractions between 0 and 1 that sum to 1.
- keywords: at most 10 short terms taken from the conversation.
- topics: at most 5 themes discussed.
- summary: at most 3 sentences, neutral and factual.
- actionableInsights: 3 to 5 concrete follow-up actions for the care team.
Write in the language of the transcript.`

// Completer is the subset of the LLM client used by the analyzer.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Analyzer turns transcripts into Analysis values.
type Analyzer struct {
	client Completer
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil client makes every call return the
// fallback analysis.
func NewAnalyzer(client Completer, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		logger: logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze returns the analysis for text, or Fallback() when the service
// cannot produce a usable answer.
func (a *Analyzer) Analyze(ctx context.Context, text string) Analysis {
	result, err := a.analyze(ctx, text)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, a.log()), "analysis unavailable; using fallback", "analysis_fallback",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "check llm.api_key, llm.model and service availability"),
			logging.String(logging.FieldImpact, "record stored with generic analysis"),
		)
		return Fallback()
	}
	return result
}

func (a *Analyzer) log() *slog.Logger {
	if a == nil || a.logger == nil {
		return logging.NewNop()
	}
	return a.logger
}

func (a *Analyzer) analyze(ctx context.Context, text string) (Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analyzing", "analyze", "transcript is empty", nil)
	}
	if a == nil || a.client == nil {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analyzing", "analyze", "analysis service not configured", nil)
	}
	if runes := []rune(text); len(runes) > maxTranscriptRunes {
		text = string(runes[:maxTranscriptRunes])
	}

	content, err := a.client.Complete(ctx, llm.Request{
		System: SystemPrompt,
		User:   "Transcript:\n" + text,
		Schema: ResponseSchema(),
	})
	if err != nil {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analyzing", "complete", "analysis request failed", err)
	}
	var parsed Analysis
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analyzing", "decode", "analysis payload is not valid JSON", err)
	}
	parsed.Fallback = false
	clamped := Clamp(parsed)
	if err := validate(clamped); err != nil {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analyzing", "validate", "analysis payload incomplete", err)
	}
	return clamped, nil
}

func validate(a Analysis) error {
	var missing []string
	if a.Sentiments == nil {
		missing = append(missing, "sentiments")
	}
	if a.Summary == "" {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carescribe/internal/config"
)

// Status values written to the tracking record.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusErrored    = "errored"
)

// Update describes one tracking-record change.
type Update struct {
	SessionID   string
	RecordName  string
	SubjectID   string
	DisplayName string
	Error       string
}

// Service updates tracking records.
type Service interface {
	MarkProcessing(ctx context.Context, update Update) error
	MarkCompleted(ctx context.Context, update Update) error
	MarkErrored(ctx context.Context, update Update) error
}

// NewService returns an HTTP-backed service when tracking.base_url is set and
// a no-op otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Tracking.BaseURL), "/")
	if base == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Tracking.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Tracking.Token),
		client:  &http.Client{Timeout: timeout},
	}
}

type patchBody struct {
	Status            string `json:"status"`
	TranscriptionName string `json:"transcription_name,omitempty"`
	SubjectID         string `json:"subject_id,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
	Error             string `json:"error,omitempty"`
}

type httpService struct {
	baseURL string
	token   string
	client  *http.Client
}

func (s *httpService) MarkProcessing(ctx context.Context, update Update) error {
	return s.patch(ctx, update.SessionID, patchBody{Status: StatusProcessing})
}

func (s *httpService) MarkCompleted(ctx context.Context, update Update) error {
	return s.patch(ctx, update.SessionID, patchBody{
		Status:            StatusCompleted,
		TranscriptionName: strings.TrimSpace(update.RecordName),
		SubjectID:         strings.TrimSpace(update.SubjectID),
		DisplayName:       strings.TrimSpace(update.DisplayName),
	})
}

func (s *httpService) MarkErrored(ctx context.Context, update Update) error {
	message := strings.TrimSpace(update.Error)
	if message == "" {
		message = "processing failed"
	}
	return s.patch(ctx, update.SessionID, patchBody{Status: StatusErrored, Error: message})
}

func (s *httpService) patch(ctx context.Context, sessionID string, body patchBody) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode tracking update: %w", err)
	}
	endpoint := s.baseURL + "/sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build tracking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send tracking update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("tracking update for %s returned %d: %s", sessionID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) MarkProcessing(context.Context, Update) error { return nil }
func (noopService) MarkCompleted(context.Context, Update) error  { return nil }
func (noopService) MarkErrored(context.Context, Update) error    { return nil }

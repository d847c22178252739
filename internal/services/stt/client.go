package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"carescribe/internal/language"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com"
	defaultModel          = "gemini-2.5-flash"
	defaultHTTPTimeout    = 300 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	apiKeyHeader          = "x-goog-api-key"
)

// Config captures the runtime settings for the speech-to-text service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
	MaxAttempts    int
}

// Unit is one piece of audio to transcribe. Total is 1 for single-unit jobs.
type Unit struct {
	Path  string
	Index int
	Total int
}

// ChunkTranscript is the outcome of transcribing one unit.
type ChunkTranscript struct {
	Text    string
	Success bool
	Error   string
}

// Transcriber is implemented by Client and by test doubles.
type Transcriber interface {
	Transcribe(ctx context.Context, unit Unit, isFinal bool) ChunkTranscript
}

// Client talks to the speech-to-text REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// NewClient constructs a speech-to-text client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			Language:       strings.TrimSpace(cfg.Language),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxAttempts:    cfg.MaxAttempts,
		},
		httpClient:     &http.Client{Timeout: timeout},
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.MaxAttempts <= 0 {
		client.cfg.MaxAttempts = defaultRetryAttempts
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Transcribe uploads unit and returns its transcript. isFinal is false when
// the unit is one chunk of a longer session; the prompt then tells the model
// not to add an introduction or closing of its own.
func (c *Client) Transcribe(ctx context.Context, unit Unit, isFinal bool) ChunkTranscript {
	text, err := c.transcribe(ctx, unit, isFinal)
	if err != nil {
		return Placeholder(err)
	}
	return ChunkTranscript{Text: text, Success: true}
}

// Placeholder builds the failed transcript for err.
func Placeholder(err error) ChunkTranscript {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ChunkTranscript{
		Text:    fmt.Sprintf("[transcription failed: %s]", msg),
		Success: false,
		Error:   msg,
	}
}

func (c *Client) transcribe(ctx context.Context, unit Unit, isFinal bool) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("stt: api key required")
	}
	data, err := os.ReadFile(unit.Path)
	if err != nil {
		return "", fmt.Errorf("stt: read audio: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("stt: audio unit is empty")
	}
	mimeType := audioMIMEType(unit.Path)

	file, err := c.upload(ctx, data, mimeType, filepath.Base(unit.Path))
	if err != nil {
		return "", err
	}
	defer c.deleteFile(ctx, file.Name)

	if file.MIMEType != "" {
		mimeType = file.MIMEType
	}
	body, err := c.generate(ctx, file.URI, mimeType, c.prompt(unit, isFinal))
	if err != nil {
		return "", err
	}
	text := extractText(body)
	if text == "" {
		return "", fmt.Errorf("stt: response contained no transcript (snippet: %s)", snippet(body))
	}
	return text, nil
}

type uploadedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
}

func (c *Client) upload(ctx context.Context, data []byte, mimeType, displayName string) (uploadedFile, error) {
	endpoint := c.cfg.BaseURL + "/upload/v1beta/files?uploadType=media"
	body, err := c.doWithRetry(ctx, "stt upload", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mimeType)
		req.Header.Set("X-Goog-Upload-Protocol", "raw")
		req.Header.Set("X-Goog-Upload-File-Name", displayName)
		return req, nil
	})
	if err != nil {
		return uploadedFile{}, err
	}
	var parsed struct {
		File uploadedFile `json:"file"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return uploadedFile{}, fmt.Errorf("stt upload: decode response: %w", err)
	}
	if strings.TrimSpace(parsed.File.URI) == "" {
		return uploadedFile{}, fmt.Errorf("stt upload: response missing file uri (snippet: %s)", snippet(body))
	}
	return parsed.File, nil
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

func (c *Client) generate(ctx context.Context, fileURI, mimeType, prompt string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(c.cfg.Model))
	payload := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{FileData: &fileData{MIMEType: mimeType, FileURI: fileURI}},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: 0},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stt generate: encode body: %w", err)
	}
	return c.doWithRetry(ctx, "stt generate", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) deleteFile(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/v1beta/"+name, nil)
	if err != nil {
		return
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *Client) prompt(unit Unit, isFinal bool) string {
	var b strings.Builder
	b.WriteString("Transcribe this care-session recording verbatim. ")
	b.WriteString("Return only the spoken words as plain text, without timestamps, speaker labels, or commentary.")
	if !isFinal && unit.Total > 1 {
		fmt.Fprintf(&b, " This audio is part %d of %d of one session; it may start or end mid-sentence.", unit.Index+1, unit.Total)
	}
	if name := language.DisplayName(c.cfg.Language); name != "" {
		fmt.Fprintf(&b, " The spoken language is %s.", name)
	}
	return b.String()
}

type httpStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) doWithRetry(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: new request: %w", op, err))
		}
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("%s: http error: %w", op, err)
			if retryable(ctx, err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w", op, err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			statusErr := &httpStatusError{Op: op, StatusCode: resp.StatusCode, Body: snippet(data)}
			if retryable(ctx, statusErr) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		body = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBaseDelay
	bo.MaxInterval = c.retryMaxDelay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func audioMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"carescribe/internal/analysis"
	"carescribe/internal/api"
	"carescribe/internal/config"
	"carescribe/internal/logging"
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/reprocess"
	"carescribe/internal/testsupport"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	err  error
}

func (f *fakeDispatcher) Submit(job pipeline.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeDispatcher) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pipeline.Stats{Workers: 2, QueueCapacity: 8, Queued: len(f.jobs)}
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string) analysis.Analysis {
	return analysis.Analysis{Sentiments: &analysis.Sentiments{Neutral: 1}, Summary: "Summary."}
}

type fixture struct {
	cfg         *config.Config
	store       *recordstore.Store
	dispatcher  *fakeDispatcher
	reprocessor *reprocess.Reprocessor
	handler     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxUploadMB(1))
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := pipeline.NewCoordinator(pipeline.Dependencies{
		Analyzer: stubAnalyzer{},
		Store:    store,
	}, cfg.Paths.WorkDir, cfg.SegmentThresholdBytes(), logging.NewNop())
	f := &fixture{
		cfg:         cfg,
		store:       store,
		dispatcher:  &fakeDispatcher{},
		reprocessor: reprocess.New(store, stubAnalyzer{}, logging.NewNop()),
	}
	server := api.New(cfg, api.Dependencies{
		Dispatcher:  f.dispatcher,
		Text:        coordinator,
		Records:     store,
		Reprocessor: f.reprocessor,
	}, logging.NewNop())
	f.handler = server.Handler()
	t.Cleanup(f.reprocessor.Wait)
	return f
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, writer.FormDataContentType()
}

func (f *fixture) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadAcceptsMedia(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, map[string]string{
		"subject_id":   "s1",
		"display_name": "Ann Lee",
		"session_id":   "sess-1",
	}, "visit.MP3", []byte("ID3 audio bytes"))

	rec := f.do(t, http.MethodPost, "/api/transcriptions", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[api.JobAccepted](t, rec)
	if accepted.Status != "accepted" || accepted.JobID == "" {
		t.Fatalf("unexpected body %+v", accepted)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	if len(f.dispatcher.jobs) != 1 {
		t.Fatalf("expected one submitted job, got %d", len(f.dispatcher.jobs))
	}
	job := f.dispatcher.jobs[0]
	if job.ID != accepted.JobID || !job.OwnsSource || job.FileName != "visit.MP3" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Subject.SubjectID != "s1" || job.Subject.SessionID != "sess-1" {
		t.Fatalf("subject not carried: %+v", job.Subject)
	}
	data, err := os.ReadFile(job.SourcePath)
	if err != nil || string(data) != "ID3 audio bytes" {
		t.Fatalf("upload not stored: %q %v", data, err)
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  []byte
		want     int
	}{
		{"missing file", "", nil, http.StatusBadRequest},
		{"unsupported extension", "notes.exe", []byte("x"), http.StatusUnsupportedMediaType},
		{"empty file", "visit.wav", []byte{}, http.StatusBadRequest},
		{"too large", "visit.wav", bytes.Repeat([]byte("a"), 1024*1024+1), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			body, ct := multipartBody(t, nil, tc.fileName, tc.content)
			rec := f.do(t, http.MethodPost, "/api/transcriptions", body, ct)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if decode[api.ErrorResponse](t, rec).Error == "" {
				t.Fatal("expected error message")
			}
			if len(f.dispatcher.jobs) != 0 {
				t.Fatal("invalid upload must not be queued")
			}
			entries, _ := os.ReadDir(f.cfg.Paths.UploadDir)
			if len(entries) != 0 {
				t.Fatalf("invalid upload left %d files behind", len(entries))
			}
		})
	}
}

func TestUploadQueueFull(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = pipeline.ErrQueueFull
	body, ct := multipartBody(t, nil, "visit.wav", []byte("RIFF"))

	rec := f.do(t, http.MethodPost, "/api/transcriptions", body, ct)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	entries, _ := os.ReadDir(f.cfg.Paths.UploadDir)
	if len(entries) != 0 {
		t.Fatal("rejected upload must be removed")
	}
}

func TestTextTranscriptionFromField(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, map[string]string{
		"text":         "Typed notes.",
		"display_name": "Ann Lee",
		"subject_id":   "S-1",
		"session_date": "2025-03-14",
	}, "", nil)

	rec := f.do(t, http.MethodPost, "/api/transcriptions/text", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	record := decode[recordstore.Record](t, rec)
	if record.Name != "ann-lee_s-1_2025-03-14" || record.Size != len("Typed notes.") {
		t.Fatalf("unexpected record %+v", record)
	}

	rec = f.do(t, http.MethodGet, "/api/records/"+record.Name, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	detail := decode[api.RecordDetail](t, rec)
	if detail.Transcript != "Typed notes." || detail.Record.Analysis == nil {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestTextTranscriptionFromHTMLFile(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, nil, "notes.html", []byte("<html><body><p>Hello</p><p>there</p></body></html>"))
	rec := f.do(t, http.MethodPost, "/api/transcriptions/text", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	record := decode[recordstore.Record](t, rec)
	_, transcript, _ := f.store.Get(context.Background(), record.Name)
	if transcript != "Hello\nthere" || record.FileName != "notes.html" {
		t.Fatalf("unexpected transcript %q for %+v", transcript, record)
	}
}

func TestTextTranscriptionRejects(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, nil, "notes.pdf", []byte("%PDF"))
	if rec := f.do(t, http.MethodPost, "/api/transcriptions/text", body, ct); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	body, ct = multipartBody(t, map[string]string{"subject_id": "s1"}, "", nil)
	if rec := f.do(t, http.MethodPost, "/api/transcriptions/text", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body, ct = multipartBody(t, nil, "blank.txt", []byte("   "))
	if rec := f.do(t, http.MethodPost, "/api/transcriptions/text", body, ct); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty file, got %d", rec.Code)
	}
}

func TestRecordsEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, rec := range []recordstore.Record{
		{Name: "a", Metadata: recordstore.SubjectContext{SubjectID: "s1"}},
		{Name: "b", Metadata: recordstore.SubjectContext{SubjectID: "s2"}},
	} {
		if err := f.store.Upsert(ctx, rec, "text"); err != nil {
			t.Fatal(err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/records", nil, "")
	if list := decode[api.RecordList](t, rec); len(list.Records) != 2 {
		t.Fatalf("expected 2 records, got %+v", list)
	}
	rec = f.do(t, http.MethodGet, "/api/records?subject=s2", nil, "")
	if list := decode[api.RecordList](t, rec); len(list.Records) != 1 || list.Records[0].Name != "b" {
		t.Fatalf("unexpected filtered list %+v", list)
	}
	if rec := f.do(t, http.MethodGet, "/api/records/missing", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/records/export.xlsx", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("unexpected export response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("export is not a zip container")
	}
}

func TestReprocessEndpoints(t *testing.T) {
	f := newFixture(t)
	registry := f.reprocessor.Registry()

	registry.TryLockSubject("s1")
	if rec := f.do(t, http.MethodPost, "/api/reprocess/subjects/s1", nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for locked subject, got %d", rec.Code)
	}
	registry.UnlockSubject("s1")

	rec := f.do(t, http.MethodPost, "/api/reprocess/subjects/s1?force=true", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if accepted := decode[api.ReprocessAccepted](t, rec); !accepted.Force || accepted.Subject != "s1" {
		t.Fatalf("unexpected body %+v", accepted)
	}
	f.reprocessor.Wait()

	registry.TryBeginBulk()
	if rec := f.do(t, http.MethodPost, "/api/reprocess", nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while bulk runs, got %d", rec.Code)
	}
	registry.EndBulk()
	if rec := f.do(t, http.MethodPost, "/api/reprocess?subject=s1", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Upsert(context.Background(), recordstore.Record{Name: "a"}, "x"); err != nil {
		t.Fatal(err)
	}
	rec := f.do(t, http.MethodGet, "/api/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[api.Status](t, rec)
	if status.Records != 1 || status.Dispatcher.Workers != 2 || status.Reprocess.BulkRunning {
		t.Fatalf("unexpected status %+v", status)
	}
}

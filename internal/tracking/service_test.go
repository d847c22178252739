package tracking_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"carescribe/internal/config"
	"carescribe/internal/tracking"
)

type captured struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func newCollaborator(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		requests = append(requests, captured{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func TestNoopWithoutBaseURL(t *testing.T) {
	cfg := config.Default()
	svc := tracking.NewService(&cfg)
	if err := svc.MarkCompleted(context.Background(), tracking.Update{SessionID: "abc"}); err != nil {
		t.Fatalf("expected noop, got %v", err)
	}
}

func TestMarkCompletedSendsPatch(t *testing.T) {
	server, requests := newCollaborator(t, http.StatusOK)
	cfg := config.Default()
	cfg.Tracking.BaseURL = server.URL + "/"
	cfg.Tracking.Token = "secret"

	svc := tracking.NewService(&cfg)
	err := svc.MarkCompleted(context.Background(), tracking.Update{
		SessionID:   "sess-1",
		RecordName:  "ann-lee_s1_2025-03-14",
		SubjectID:   "s1",
		DisplayName: "Ann Lee",
	})
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	req := got[0]
	if req.method != http.MethodPatch || req.path != "/sessions/sess-1" {
		t.Fatalf("unexpected request %s %s", req.method, req.path)
	}
	if req.auth != "Bearer secret" {
		t.Fatalf("unexpected authorization %q", req.auth)
	}
	if req.body["status"] != tracking.StatusCompleted || req.body["transcription_name"] != "ann-lee_s1_2025-03-14" ||
		req.body["subject_id"] != "s1" || req.body["display_name"] != "Ann Lee" {
		t.Fatalf("unexpected body %+v", req.body)
	}
}

func TestMarkErroredCarriesMessage(t *testing.T) {
	server, requests := newCollaborator(t, http.StatusNoContent)
	cfg := config.Default()
	cfg.Tracking.BaseURL = server.URL

	svc := tracking.NewService(&cfg)
	if err := svc.MarkErrored(context.Background(), tracking.Update{SessionID: "sess-2", Error: "conversion error"}); err != nil {
		t.Fatalf("MarkErrored: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].body["status"] != tracking.StatusErrored || got[0].body["error"] != "conversion error" {
		t.Fatalf("unexpected requests %+v", got)
	}
	if got[0].auth != "" {
		t.Fatalf("expected no authorization header, got %q", got[0].auth)
	}
}

func TestSkipsJobsWithoutSession(t *testing.T) {
	server, requests := newCollaborator(t, http.StatusOK)
	cfg := config.Default()
	cfg.Tracking.BaseURL = server.URL

	svc := tracking.NewService(&cfg)
	if err := svc.MarkProcessing(context.Background(), tracking.Update{SubjectID: "s1"}); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if n := len(requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestReportsCollaboratorErrors(t *testing.T) {
	server, _ := newCollaborator(t, http.StatusNotFound)
	cfg := config.Default()
	cfg.Tracking.BaseURL = server.URL

	svc := tracking.NewService(&cfg)
	if err := svc.MarkProcessing(context.Background(), tracking.Update{SessionID: "missing"}); err == nil {
		t.Fatal("expected error for 404")
	}
}

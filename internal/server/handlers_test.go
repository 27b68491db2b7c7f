package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rag-assistant/internal/config"
	"rag-assistant/internal/history"
	"rag-assistant/internal/models"
)

type fakeAnswerer struct {
	result models.AnswerResult
	panics bool
	query  string
	topK   int
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, topK int) models.AnswerResult {
	if f.panics {
		panic("boom")
	}
	f.query, f.topK = query, topK
	return f.result
}

type fakeIngester struct {
	report *models.IngestionReport
	err    error
	path   string
}

func (f *fakeIngester) IngestFile(_ context.Context, path, sourceID string) (*models.IngestionReport, error) {
	f.path = path
	return f.report, f.err
}

func newTestServer(a Answerer, ing Ingester, rec history.Recorder) http.Handler {
	return NewServer(a, ing, rec, &config.ServerConfig{Addr: ":0", RequestTimeout: 5 * time.Second}).Router()
}

// newIngestServer serves an ingest directory holding faq.txt, with
// secret.txt next to it outside the directory.
func newIngestServer(t *testing.T, ing Ingester) (http.Handler, string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("battery replacement policy"), 0o644); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(secret, []byte("db_password hunter2"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.ServerConfig{Addr: ":0", RequestTimeout: 5 * time.Second, IngestDir: dir}
	return NewServer(&fakeAnswerer{}, ing, nil, cfg).Router(), dir, secret
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleChat(t *testing.T) {
	answerer := &fakeAnswerer{result: models.AnswerResult{
		Text:        "Visit any store.",
		ContextUsed: true,
		Sources:     []models.RetrievalResult{{Content: "battery replacement policy", Score: 0.9}},
	}}
	rec := history.NewMemoryRecorder()
	h := newTestServer(answerer, nil, rec)

	w := do(t, h, http.MethodPost, "/chat", `{"query":"  How do I replace my battery? ","top_k":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var out ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Response != "Visit any store." || !out.ContextUsed || len(out.Sources) != 1 {
		t.Errorf("response = %+v", out)
	}
	if answerer.query != "How do I replace my battery?" || answerer.topK != 3 {
		t.Errorf("answerer got %q, %d", answerer.query, answerer.topK)
	}

	msgs, _ := rec.Recent(context.Background(), 0)
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("history = %+v", msgs)
	}
}

func TestHandleChat_BadRequests(t *testing.T) {
	h := newTestServer(&fakeAnswerer{}, nil, nil)
	tests := []struct {
		body string
		want string
	}{
		{`{"query":"   "}`, models.NoQueryMessage},
		{`{}`, models.NoQueryMessage},
		{`not json`, "invalid request body"},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPost, "/chat", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", tt.body, w.Code)
		}
		var out ChatResponse
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Response != tt.want {
			t.Errorf("body %q: response = %q, want %q", tt.body, out.Response, tt.want)
		}
	}
}

func TestHandleChat_FailedAnswer(t *testing.T) {
	h := newTestServer(&fakeAnswerer{result: models.AnswerResult{Text: models.SafeErrorMessage, Failed: true}}, nil, nil)
	w := do(t, h, http.MethodPost, "/chat", `{"query":"battery?"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var out ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Response != models.SafeErrorMessage {
		t.Errorf("response = %q", out.Response)
	}
}

func TestHandleChat_Panic(t *testing.T) {
	h := newTestServer(&fakeAnswerer{panics: true}, nil, nil)
	w := do(t, h, http.MethodPost, "/chat", `{"query":"battery?"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value leaked to client")
	}
}

func TestHistoryRoutes(t *testing.T) {
	rec := history.NewMemoryRecorder()
	_ = rec.Record(context.Background(), models.RoleUser, "hi")
	_ = rec.Record(context.Background(), models.RoleAssistant, "hello")
	h := newTestServer(&fakeAnswerer{}, nil, rec)

	w := do(t, h, http.MethodGet, "/history?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Messages []history.Message `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", out.Messages)
	}

	if w := do(t, h, http.MethodGet, "/history?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/history", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if msgs, _ := rec.Recent(context.Background(), 0); len(msgs) != 0 {
		t.Errorf("history not cleared: %+v", msgs)
	}
}

func TestHistoryRoutesDisabled(t *testing.T) {
	h := newTestServer(&fakeAnswerer{}, nil, nil)
	if w := do(t, h, http.MethodGet, "/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	ing := &fakeIngester{report: &models.IngestionReport{
		SourceID: "faq.txt", ChunksProduced: 3, ChunksEmbedded: 2, ChunksStored: 2,
		Failures: []models.ChunkFailure{{Cause: errors.New("quota")}},
	}}
	h, dir, _ := newIngestServer(t, ing)

	w := do(t, h, http.MethodPost, "/ingest", `{"path":"faq.txt"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var out IngestResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ChunksStored != 2 || out.ChunksFailed != 1 || out.SourceID != "faq.txt" {
		t.Errorf("response = %+v", out)
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if ing.path != filepath.Join(realDir, "faq.txt") {
		t.Errorf("path = %q", ing.path)
	}

	if w := do(t, h, http.MethodPost, "/ingest", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing path status = %d", w.Code)
	}

	ing.err = &models.BackendError{Op: "insert", Cause: errors.New("dial tcp 10.0.0.1")}
	ing.report.Partial = true
	w = do(t, h, http.MethodPost, "/ingest", `{"path":"faq.txt"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.1") {
		t.Error("backend details leaked")
	}
}

func TestHandleIngest_RejectsPathsOutsideDir(t *testing.T) {
	ing := &fakeIngester{report: &models.IngestionReport{}}
	h, dir, secret := newIngestServer(t, ing)
	if err := os.Symlink(secret, filepath.Join(dir, "link.txt")); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{
		secret,
		"../secret.txt",
		"sub/../../secret.txt",
		"link.txt",
		"missing.txt",
		"sub",
	} {
		body, _ := json.Marshal(IngestRequest{Path: p})
		w := do(t, h, http.MethodPost, "/ingest", string(body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("path %q: status = %d", p, w.Code)
		}
		if strings.Contains(w.Body.String(), "hunter2") {
			t.Errorf("path %q: file contents leaked", p)
		}
	}
	if ing.path != "" {
		t.Errorf("ingester called with %q", ing.path)
	}
}

func TestHandleIngest_DisabledWithoutDir(t *testing.T) {
	h := newTestServer(&fakeAnswerer{}, &fakeIngester{}, nil)
	if w := do(t, h, http.MethodPost, "/ingest", `{"path":"faq.txt"}`); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakeAnswerer{}, nil, nil)
	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rag_http_requests_total") {
		t.Error("metrics output missing rag_http_requests_total")
	}
}

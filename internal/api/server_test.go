package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmcalloway/webgest/internal/config"
	"github.com/jmcalloway/webgest/internal/ingest"
	"github.com/jmcalloway/webgest/internal/pipeline"
	"github.com/jmcalloway/webgest/internal/vectorstore"
)

func testEmbedding(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

type stubSource struct {
	fail map[string]bool
}

func (s *stubSource) Fetch(_ context.Context, locator string) (ingest.Document, error) {
	if s.fail[locator] {
		return ingest.Document{}, fmt.Errorf("fetch %s: HTTP 500", locator)
	}
	return ingest.Document{
		Ref:      locator,
		Text:     "page text for " + locator + " long enough to produce several chunks of content",
		Metadata: map[string]string{"url": locator},
	}, nil
}

type testEnv struct {
	server *Server
	store  *vectorstore.Store
	orch   *pipeline.Orchestrator
}

func newTestEnv(t *testing.T, apiKey string, src pipeline.Source) *testEnv {
	t.Helper()

	store, err := vectorstore.New("", testEmbedding, nil)
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}

	cfg := config.Config{
		APIKey:              apiKey,
		DefaultChunkSize:    40,
		DefaultChunkOverlap: 10,
		MaxUploadBytes:      1 << 20,
	}

	pl := pipeline.New(src, store, nil, pipeline.Options{Workers: 2})
	orch := pipeline.NewOrchestrator(pl, 1, 8, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})

	return &testEnv{
		server: NewServer(orch, pl, store, nil, cfg),
		store:  store,
		orch:   orch,
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, "secret", &stubSource{})
	rec := doJSON(t, env.server, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "secret", &stubSource{})

	rec := doJSON(t, env.server, http.MethodGet, "/api/collections", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unauthenticated Content-Type = %q", ct)
	}
	if msg, _ := decodeBody(t, rec)["error"].(string); msg != "missing authorization" {
		t.Errorf("unauthenticated error = %q", msg)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d", rec.Code)
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := doJSON(t, env.server, http.MethodGet, "/api/collections", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIngest_Validation(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})

	rec := doJSON(t, env.server, http.MethodPost, "/api/ingest", map[string]any{"urls": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty urls status = %d", rec.Code)
	}

	rec = doJSON(t, env.server, http.MethodPost, "/api/ingest", map[string]any{
		"urls":          []string{"https://example.com"},
		"chunk_size":    100,
		"chunk_overlap": 100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("overlap >= size status = %d", rec.Code)
	}
}

func TestPolicyFor_OverlapResolution(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	zero := 0

	policy, err := env.server.policyFor(0, nil)
	if err != nil {
		t.Fatalf("absent overlap: %v", err)
	}
	if policy.Overlap() != 10 {
		t.Errorf("absent overlap = %d, want configured default 10", policy.Overlap())
	}

	policy, err = env.server.policyFor(0, &zero)
	if err != nil {
		t.Fatalf("explicit zero overlap: %v", err)
	}
	if policy.Overlap() != 0 {
		t.Errorf("explicit zero overlap = %d, want 0", policy.Overlap())
	}

	neg := -1
	if _, err := env.server.policyFor(0, &neg); err == nil {
		t.Error("negative overlap accepted")
	}
}

func TestIngest_ExplicitZeroOverlapAccepted(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := doJSON(t, env.server, http.MethodPost, "/api/ingest", map[string]any{
		"urls":          []string{"https://example.com"},
		"chunk_size":    100,
		"chunk_overlap": 0,
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestIngest_BatchLifecycle(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{fail: map[string]bool{"https://example.com/bad": true}})

	rec := doJSON(t, env.server, http.MethodPost, "/api/ingest", map[string]any{
		"urls":       []string{"https://example.com/good", "https://example.com/bad"},
		"collection": "web",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	jobID, _ := decodeBody(t, rec)["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id in response")
	}

	deadline := time.After(5 * time.Second)
	for {
		rec = doJSON(t, env.server, http.MethodGet, "/api/ingest/"+jobID+"/status", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if status, _ := body["status"].(string); status == "partial" {
			results, _ := body["results"].([]any)
			if len(results) != 2 {
				t.Fatalf("results = %v", results)
			}
			first := results[0].(map[string]any)
			second := results[1].(map[string]any)
			if first["success"] != true || first["source"] != "https://example.com/good" {
				t.Errorf("first result = %v", first)
			}
			if second["success"] != false || !strings.Contains(second["error"].(string), "HTTP 500") {
				t.Errorf("second result = %v", second)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never finished: %s", rec.Body.String())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if env.store.Count("web") == 0 {
		t.Error("successful source stored no chunks")
	}
}

func TestIngestStatus_UnknownJob(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := doJSON(t, env.server, http.MethodGet, "/api/ingest/nope/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func uploadFile(t *testing.T, srv *Server, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIngestFile_Text(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})

	content := "First paragraph of the uploaded file.\n\nSecond paragraph with more words in it."
	rec := uploadFile(t, env.server, "notes.txt", content, map[string]string{"collection": "uploads"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	result := body["result"].(map[string]any)
	if result["success"] != true {
		t.Fatalf("result = %v", result)
	}
	if env.store.Count("uploads") == 0 {
		t.Error("no chunks stored")
	}
}

func TestIngestFile_UnsupportedType(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := uploadFile(t, env.server, "archive.zip", "binary", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIngestFile_EmptyContent(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := uploadFile(t, env.server, "blank.txt", "   \n\n  ", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCollectionsEndpoints(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})

	// Seed via file upload.
	rec := uploadFile(t, env.server, "seed.txt", "Some seed content with enough words to make a chunk or two.", map[string]string{"collection": "docs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed upload = %d", rec.Code)
	}

	rec = doJSON(t, env.server, http.MethodGet, "/api/collections", nil)
	body := decodeBody(t, rec)
	colls, _ := body["collections"].([]any)
	if len(colls) != 1 || colls[0] != "docs" {
		t.Errorf("collections = %v", colls)
	}

	rec = doJSON(t, env.server, http.MethodGet, "/api/collections/docs/count", nil)
	if count := decodeBody(t, rec)["count"].(float64); count == 0 {
		t.Error("count = 0")
	}

	rec = doJSON(t, env.server, http.MethodGet, "/api/collections/docs/peek?limit=2", nil)
	chunks, _ := decodeBody(t, rec)["chunks"].([]any)
	if len(chunks) == 0 {
		t.Error("peek returned no chunks")
	}

	rec = doJSON(t, env.server, http.MethodPost, "/api/collections/docs/query", map[string]any{
		"text": "seed content", "top_k": 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d: %s", rec.Code, rec.Body.String())
	}
	matches, _ := decodeBody(t, rec)["matches"].([]any)
	if len(matches) == 0 {
		t.Error("query returned no matches")
	}

	rec = doJSON(t, env.server, http.MethodPost, "/api/collections/docs/delete", map[string]any{
		"where": map[string]string{"source": "seed.txt"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", rec.Code, rec.Body.String())
	}
	if deleted := decodeBody(t, rec)["deleted"].(float64); deleted == 0 {
		t.Error("deleted = 0")
	}

	rec = doJSON(t, env.server, http.MethodDelete, "/api/collections/docs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete collection = %d", rec.Code)
	}
	rec = doJSON(t, env.server, http.MethodGet, "/api/collections", nil)
	if colls, _ := decodeBody(t, rec)["collections"].([]any); len(colls) != 0 {
		t.Errorf("collections after delete = %v", colls)
	}
}

func TestQuery_Validation(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := doJSON(t, env.server, http.MethodPost, "/api/collections/docs/query", map[string]any{"top_k": 3})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, "", &stubSource{})
	rec := doJSON(t, env.server, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["queue_depth"]; !ok {
		t.Error("queue_depth missing")
	}
}

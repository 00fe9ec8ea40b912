package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcalloway/webgest/internal/chunker"
	"github.com/jmcalloway/webgest/internal/parser"
	"github.com/jmcalloway/webgest/internal/pipeline"
)

// defaultCollection receives chunks when a request names none.
const defaultCollection = "documents"

type ingestRequest struct {
	URLs         []string `json:"urls"`
	Collection   string   `json:"collection"`
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap *int     `json:"chunk_overlap"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.URLs) == 0 {
		jsonError(w, "urls is required", http.StatusBadRequest)
		return
	}
	if req.Collection == "" {
		req.Collection = defaultCollection
	}

	policy, err := s.policyFor(req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(req.URLs, req.Collection, policy)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"collection": job.Collection,
		"status":     job.Status,
		"sources":    len(req.URLs),
		"poll_url":   fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleIngestFile ingests one uploaded document synchronously and
// returns its result.
func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	collection := r.FormValue("collection")
	if collection == "" {
		collection = defaultCollection
	}

	chunkSize := formInt(r, "chunk_size")
	chunkOverlap := formIntPtr(r, "chunk_overlap")
	policy, err := s.policyFor(chunkSize, chunkOverlap)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = s.cfg.PDFFallbackPdftotext
	}

	doc, err := p.Parse(file, filename)
	if err != nil {
		jsonError(w, "parse failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	result := s.pipeline.IngestDocument(r.Context(), doc, collection, policy)

	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"collection": collection,
		"result":     result,
	})
}

// policyFor resolves request overrides against configured defaults. A
// nil overlap means the field was absent and the default applies; an
// explicit zero disables overlap entirely.
func (s *Server) policyFor(size int, overlap *int) (chunker.Policy, error) {
	if size <= 0 {
		size = s.cfg.DefaultChunkSize
	}
	ov := s.cfg.DefaultChunkOverlap
	if overlap != nil {
		ov = *overlap
	}
	return chunker.NewPolicy(size, ov, nil)
}

func formInt(r *http.Request, key string) int {
	if v := r.FormValue(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func formIntPtr(r *http.Request, key string) *int {
	if v := r.FormValue(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}

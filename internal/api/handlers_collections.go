package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcalloway/webgest/internal/vectorstore"
)

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names := s.store.ListCollections()
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"collections": names})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteCollection(name); err != nil {
		jsonError(w, "delete collection: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": name})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": name,
		"count":      s.store.Count(name),
	})
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	matches, err := s.store.Peek(r.Context(), name, limit)
	if err != nil {
		jsonError(w, "peek: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []vectorstore.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": name,
		"chunks":     matches,
	})
}

type queryRequest struct {
	Text  string            `json:"text"`
	TopK  int               `json:"top_k"`
	Where map[string]string `json:"where"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	matches, err := s.store.Query(r.Context(), name, req.Text, req.TopK, req.Where)
	if err != nil {
		jsonError(w, "query: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []vectorstore.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": name,
		"matches":    matches,
	})
}

type deleteChunksRequest struct {
	IDs   []string          `json:"ids"`
	Where map[string]string `json:"where"`
}

// handleDeleteChunks removes chunks by explicit ids or a metadata match.
func (s *Server) handleDeleteChunks(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req deleteChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 && len(req.Where) == 0 {
		jsonError(w, "ids or where is required", http.StatusBadRequest)
		return
	}

	before := s.store.Count(name)
	if len(req.IDs) > 0 {
		if err := s.store.DeleteByIDs(r.Context(), name, req.IDs); err != nil {
			jsonError(w, "delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if len(req.Where) > 0 {
		if err := s.store.DeleteWhere(r.Context(), name, req.Where); err != nil {
			jsonError(w, "delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": name,
		"deleted":    before - s.store.Count(name),
	})
}

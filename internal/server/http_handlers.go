package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sanonone/llahdb/pkg/core/llah"
	"github.com/sanonone/llahdb/pkg/engine"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// registerHTTPHandlers sets up the REST routes.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /llah/learn", s.handleLearn)
	mux.HandleFunc("POST /llah/documents", s.handleRegister)
	mux.HandleFunc("GET /llah/documents", s.handleListDocuments)
	mux.HandleFunc("GET /llah/documents/{name}", s.handleGetDocument)
	mux.HandleFunc("POST /llah/lookup", s.handleLookup)
	mux.HandleFunc("POST /llah/lookup/batch", s.handleLookupBatch)
	mux.HandleFunc("GET /llah/stats", s.handleStats)

	mux.HandleFunc("POST /system/save", s.handleSave)
	mux.HandleFunc("POST /system/reset", s.handleReset)
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req LearnRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sets := make([][]llah.Point, len(req.PointSets))
	for i, ps := range req.PointSets {
		sets[i] = toPoints(ps)
	}
	if err := s.Engine.Learn(sets); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]any{"status": "OK", "point_sets": len(sets)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	info, err := s.Engine.Register(req.Name, toPoints(req.Points))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusCreated, info)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.Engine.Documents(r.URL.Query().Get("prefix"))
	if docs == nil {
		docs = []engine.DocumentInfo{}
	}
	s.writeHTTPResponse(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	info, points, err := s.Engine.Document(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, DocumentResponse{DocumentInfo: info, Points: fromPoints(points)})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	matches, err := s.Engine.Lookup(toPoints(req.Points), req.MaxHitsPerPoint)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, toLookupResponse(matches))
}

func (s *Server) handleLookupBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchLookupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	queries := make([][]llah.Point, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = toPoints(q)
	}
	results, err := s.Engine.LookupBatch(r.Context(), queries, req.MaxHitsPerPoint)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := BatchLookupResponse{Results: make([]LookupResponse, len(results))}
	for i, matches := range results {
		resp.Results[i] = toLookupResponse(matches)
	}
	s.writeHTTPResponse(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, s.Engine.Stats())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Save(); err != nil {
		slog.Error("SAVE via HTTP failed", "error", err)
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK", "message": "Snapshot saved"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Reset(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK", "message": "All documents removed"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- HTTP Response Helpers ---

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, llah.ErrTooFewPoints),
		errors.Is(err, llah.ErrInvalidConfig),
		errors.Is(err, llah.ErrEmptyHistogram):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrDocumentNotFound),
		errors.Is(err, llah.ErrUnknownDocument):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDocumentExists),
		errors.Is(err, llah.ErrLearnAfterDocuments):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	s.writeHTTPError(w, statusFor(err), err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}

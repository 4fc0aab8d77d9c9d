// Package service exposes the filing pipeline and document store over HTTP.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/castlemilk/gstfiling/internal/store"
)

// maxUploadBytes bounds request bodies, uploads included.
const maxUploadBytes = 10 << 20

// FilingService serves document upload, classification and filing endpoints.
type FilingService struct {
	store    store.DocumentStore
	pipeline *extraction.Pipeline
	logger   *slog.Logger
}

// NewFilingService creates a FilingService. The store is owned by the caller.
func NewFilingService(s store.DocumentStore, p *extraction.Pipeline, logger *slog.Logger) *FilingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilingService{
		store:    s,
		pipeline: p,
		logger:   logger.With("component", "service"),
	}
}

// RegisterRoutes adds the service's routes to mux.
func (s *FilingService) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/documents", s.handleUploadDocument)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)

	mux.HandleFunc("POST /api/filing/classify", s.handleClassify)
	mux.HandleFunc("POST /api/filing/submit", s.handleSubmit)
	mux.HandleFunc("GET /api/filing/{id}", s.handleGetFiling)
}

// Handler returns a mux serving all routes.
func (s *FilingService) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *FilingService) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string                         `json:"error"`
	Code  extraction.ExtractionErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps err onto a status code: parameter errors are 400,
// missing records 404 and everything else 500.
func (s *FilingService) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var extErr *extraction.ExtractionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case extraction.IsParameterError(err) && errors.As(err, &extErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: extErr.Message, Code: extErr.Code})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func invalidRequest(msg string) *extraction.ExtractionError {
	return &extraction.ExtractionError{Code: extraction.ErrInvalidRequest, Message: msg}
}

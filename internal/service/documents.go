package service

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/castlemilk/gstfiling/internal/store"
	"github.com/spf13/cast"
)

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type documentSummary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Format     string    `json:"format"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	Truncated  bool      `json:"truncated,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type listDocumentsResponse struct {
	Documents     []documentSummary `json:"documents"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

func summarizeDocument(doc *store.Document) documentSummary {
	return documentSummary{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Format:     doc.Format,
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt,
	}
}

// handleUploadDocument accepts either a multipart "file" field or a JSON
// body {filename, content} and stores the text with its chunks.
func (s *FilingService) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	filename, data, err := readUpload(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	text, err := extraction.ReadDocument(data, filename)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	doc := &store.Document{
		Filename:  filename,
		Content:   text.Text,
		Chunks:    s.pipeline.Chunk(text.Text),
		Format:    text.Format,
		PageCount: text.PageCount,
	}
	if err := s.store.SaveDocument(r.Context(), doc); err != nil {
		s.writeFailure(w, r, fmt.Errorf("save document: %w", err))
		return
	}

	s.logger.Info("document stored", "document_id", doc.ID, "filename", filename, "chunks", len(doc.Chunks))

	summary := summarizeDocument(doc)
	summary.Truncated = text.Truncated
	writeJSON(w, http.StatusCreated, summary)
}

func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, invalidRequest("multipart upload requires a \"file\" field")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, invalidRequest("failed to read uploaded file")
		}
		return header.Filename, data, nil
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, invalidRequest("invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return "", nil, invalidRequest("content is required")
	}
	if req.Filename == "" {
		req.Filename = "document.txt"
	}
	return req.Filename, []byte(req.Content), nil
}

func (s *FilingService) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *FilingService) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize, err := cast.ToInt32E(q.Get("page_size"))
	if q.Get("page_size") != "" && (err != nil || pageSize < 0) {
		s.writeFailure(w, r, invalidRequest("page_size must be a non-negative integer"))
		return
	}

	if _, err := store.DecodePageToken(q.Get("page_token")); err != nil {
		s.writeFailure(w, r, invalidRequest("invalid page_token"))
		return
	}

	docs, next, err := s.store.ListDocuments(r.Context(), pageSize, q.Get("page_token"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := listDocumentsResponse{
		Documents:     make([]documentSummary, 0, len(docs)),
		NextPageToken: next,
	}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, summarizeDocument(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadChunks concatenates the chunks of the given documents in request order
// and renumbers them so indices stay unique across documents.
func (s *FilingService) loadChunks(r *http.Request, ids []string) ([]extraction.Chunk, error) {
	if len(ids) == 0 {
		return nil, invalidRequest("document_ids is required")
	}

	var chunks []extraction.Chunk
	for _, id := range ids {
		doc, err := s.store.GetDocument(r.Context(), id)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, doc.Chunks...)
	}
	return extraction.Reindex(chunks), nil
}

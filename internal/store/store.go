package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/castlemilk/gstfiling/internal/extraction"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// ErrNotFound is returned (wrapped) when a document or filing does not exist.
var ErrNotFound = errors.New("not found")

// Document is an uploaded source document with its extracted text and chunks.
// ChunkCount is set by the store on save. Firestore keeps Chunks in a
// subcollection rather than on the document itself.
type Document struct {
	ID         string             `json:"id" firestore:"id"`
	Filename   string             `json:"filename" firestore:"filename"`
	Content    string             `json:"content" firestore:"content"`
	Chunks     []extraction.Chunk `json:"chunks" firestore:"-"`
	ChunkCount int                `json:"chunk_count" firestore:"chunk_count"`
	Format     string             `json:"format" firestore:"format"`
	PageCount  int                `json:"page_count" firestore:"page_count"`
	CreatedAt  time.Time          `json:"created_at" firestore:"created_at"`
}

// FilingRecord is the stored outcome of a filing submission.
type FilingRecord struct {
	ID                string    `json:"id" firestore:"id"`
	DocumentIDs       []string  `json:"document_ids" firestore:"document_ids"`
	ReturnType        string    `json:"return_type" firestore:"return_type"`
	Period            string    `json:"period,omitempty" firestore:"period"`
	Status            string    `json:"status" firestore:"status"`
	Message           string    `json:"message,omitempty" firestore:"message"`
	InvoiceCount      int       `json:"invoice_count" firestore:"invoice_count"`
	TotalTaxableValue float64   `json:"total_taxable_value" firestore:"total_taxable_value"`
	TotalTax          float64   `json:"total_tax" firestore:"total_tax"`
	DuplicatesRemoved int       `json:"duplicates_removed" firestore:"duplicates_removed"`
	ResultJSON        string    `json:"-" firestore:"result_json"`
	CreatedAt         time.Time `json:"created_at" firestore:"created_at"`
}

// DocumentStore persists documents and filing records for the HTTP surface.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, pageSize int32, pageToken string) ([]*Document, string, error)

	SaveFiling(ctx context.Context, record *FilingRecord) error
	GetFiling(ctx context.Context, id string) (*FilingRecord, error)
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

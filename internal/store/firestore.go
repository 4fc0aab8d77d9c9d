package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	documentsCollection = "documents"
	chunksCollection    = "chunks" // under each document
	filingsCollection   = "filings"
)

// FirestoreStore implements the DocumentStore interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

// applyCursorPagination orders by document ID and resumes after the cursor
// encoded in pageToken. One extra row is fetched to detect a next page.
func (s *FirestoreStore) applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1)
	return query, nil
}

// SaveDocument writes a document to Firestore. Chunks go to the document's
// chunks subcollection first, one Firestore document each, so the text and
// its overlapping chunks never share the 1 MiB document limit.
func (s *FirestoreStore) SaveDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(doc.Chunks)

	ref := s.client.Collection(documentsCollection).Doc(doc.ID)
	if err := s.saveChunks(ctx, ref, doc.Chunks); err != nil {
		return err
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *FirestoreStore) saveChunks(ctx context.Context, parent *firestore.DocumentRef, chunks []extraction.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(chunks))
	for _, c := range chunks {
		job, err := bw.Set(parent.Collection(chunksCollection).Doc(chunkDocID(c.Index)), c)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue chunk %d: %w", c.Index, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to save chunk %d: %w", chunks[i].Index, err)
		}
	}
	return nil
}

// chunkDocID zero-pads the index so IDs sort in chunk order.
func chunkDocID(index int) string {
	return fmt.Sprintf("%06d", index)
}

// GetDocument retrieves a document and its chunks from Firestore
func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	snap, err := s.client.Collection(documentsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}

	var doc Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	// A re-saved document may leave stale chunks past ChunkCount.
	if doc.ChunkCount > 0 {
		snaps, err := snap.Ref.Collection(chunksCollection).
			OrderBy("index", firestore.Asc).
			Limit(doc.ChunkCount).
			Documents(ctx).GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks of document %s: %w", id, err)
		}
		doc.Chunks = make([]extraction.Chunk, 0, len(snaps))
		for _, cs := range snaps {
			var c extraction.Chunk
			if err := cs.DataTo(&c); err != nil {
				return nil, fmt.Errorf("failed to parse chunk: %w", err)
			}
			doc.Chunks = append(doc.Chunks, c)
		}
	}
	return &doc, nil
}

// ListDocuments lists documents ordered by ID. Chunks are not loaded.
func (s *FirestoreStore) ListDocuments(ctx context.Context, pageSize int32, pageToken string) ([]*Document, string, error) {
	query, err := s.applyCursorPagination(s.client.Collection(documentsCollection).Query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list documents: %w", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	var nextPageToken string
	if len(snaps) > int(pageSize) {
		snaps = snaps[:pageSize]
		nextPageToken = EncodePageToken(snaps[pageSize-1].Ref.ID)
	}

	docs := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		var doc Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to parse document: %w", err)
		}
		docs = append(docs, &doc)
	}

	return docs, nextPageToken, nil
}

// SaveFiling writes a filing record to Firestore
func (s *FirestoreStore) SaveFiling(ctx context.Context, record *FilingRecord) error {
	if record.ID == "" {
		return fmt.Errorf("filing ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := s.client.Collection(filingsCollection).Doc(record.ID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to save filing: %w", err)
	}
	return nil
}

// GetFiling retrieves a filing record from Firestore
func (s *FirestoreStore) GetFiling(ctx context.Context, id string) (*FilingRecord, error) {
	snap, err := s.client.Collection(filingsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "filing", id)
	}

	var record FilingRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to parse filing: %w", err)
	}
	return &record, nil
}

// notFoundOr maps a Firestore NotFound status onto ErrNotFound.
func notFoundOr(err error, kind, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
}

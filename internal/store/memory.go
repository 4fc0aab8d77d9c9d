package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements DocumentStore with in-memory storage.
// When a retention TTL is set, a background goroutine evicts old entries.
type MemoryStore struct {
	mu sync.RWMutex

	documents map[string]*Document
	filings   map[string]*FilingRecord

	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates a new in-memory store that keeps entries forever.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		filings:   make(map[string]*FilingRecord),
		done:      make(chan struct{}),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store with background cleanup of
// entries older than ttl.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	m := NewMemoryStore()
	m.ttl = ttl
	if ttl > 0 {
		go m.cleanup(cleanupInterval(ttl))
	}
	return m
}

// SaveDocument stores a document, assigning an ID and timestamp when missing.
func (m *MemoryStore) SaveDocument(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(doc.Chunks)

	m.documents[doc.ID] = doc
	return nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by ID with cursor pagination.
func (m *MemoryStore) ListDocuments(ctx context.Context, pageSize int32, pageToken string) ([]*Document, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	after, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", fmt.Errorf("invalid page token: %w", err)
	}

	ids := make([]string, 0, len(m.documents))
	for id := range m.documents {
		if after == "" || id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if pageSize <= 0 {
		pageSize = 100
	}

	var nextPageToken string
	if len(ids) > int(pageSize) {
		ids = ids[:pageSize]
		nextPageToken = EncodePageToken(ids[pageSize-1])
	}

	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, m.documents[id])
	}
	return docs, nextPageToken, nil
}

func (m *MemoryStore) SaveFiling(ctx context.Context, record *FilingRecord) error {
	if record.ID == "" {
		return fmt.Errorf("filing ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.filings[record.ID] = record
	return nil
}

func (m *MemoryStore) GetFiling(ctx context.Context, id string) (*FilingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.filings[id]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", id, ErrNotFound)
	}
	return record, nil
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictBefore(time.Now().Add(-m.ttl))
		}
	}
}

// evictBefore drops every entry created before cutoff.
func (m *MemoryStore) evictBefore(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, doc := range m.documents {
		if doc.CreatedAt.Before(cutoff) {
			delete(m.documents, id)
			evicted++
		}
	}
	for id, rec := range m.filings {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.filings, id)
			evicted++
		}
	}
	return evicted
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := 5 * time.Minute
	if ttl < interval {
		interval = ttl
	}
	return interval
}

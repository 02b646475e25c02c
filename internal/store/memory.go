package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type docRecord struct {
	doc       Document
	revisions []ContentRevision
}

// MemoryStore is the default DocumentStore: process-local, good enough for a
// single node and for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*docRecord
	cap    int
	logger *slog.Logger
}

func NewMemoryStore(logger *slog.Logger, revisionCap int) *MemoryStore {
	if revisionCap <= 0 {
		revisionCap = DefaultRevisionCap
	}
	return &MemoryStore{
		docs:   make(map[string]*docRecord),
		cap:    revisionCap,
		logger: logger.With(slog.String("component", "store_memory")),
	}
}

var _ DocumentStore = (*MemoryStore)(nil)

func (s *MemoryStore) GetDocument(_ context.Context, documentID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	doc := rec.doc
	doc.Revisions = append([]ContentRevision(nil), rec.revisions...)
	return &doc, nil
}

func (s *MemoryStore) SetDocument(_ context.Context, documentID, content, editedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(documentID)
	now := time.Now()
	rec.doc.Content = content
	rec.doc.EditedBy = editedBy
	rec.doc.EditedAt = now
	s.appendRevision(rec, documentID, content, editedBy, now, true)
	return nil
}

func (s *MemoryStore) RecordRevision(_ context.Context, documentID, content, editedBy string) (*ContentRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(documentID)
	return s.appendRevision(rec, documentID, content, editedBy, time.Now(), true), nil
}

func (s *MemoryStore) ListRevisions(_ context.Context, documentID string) ([]ContentRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]ContentRevision(nil), rec.revisions...), nil
}

func (s *MemoryStore) Restore(_ context.Context, documentID, revisionID, editedBy string) (*ContentRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	var source *ContentRevision
	for i := range rec.revisions {
		if rec.revisions[i].ID == revisionID {
			source = &rec.revisions[i]
			break
		}
	}
	if source == nil {
		return nil, ErrRevisionNotFound
	}

	now := time.Now()
	rec.doc.Content = source.Content
	rec.doc.EditedBy = editedBy
	rec.doc.EditedAt = now
	// Restore is an explicit history event: append even when the restored
	// content equals the current head.
	return s.appendRevision(rec, documentID, source.Content, editedBy, now, false), nil
}

func (s *MemoryStore) record(documentID string) *docRecord {
	rec, ok := s.docs[documentID]
	if !ok {
		rec = &docRecord{doc: Document{ID: documentID}}
		s.docs[documentID] = rec
	}
	return rec
}

// appendRevision requires s.mu to be held. Returns nil when deduplicated.
func (s *MemoryStore) appendRevision(rec *docRecord, documentID, content, editedBy string, at time.Time, dedupe bool) *ContentRevision {
	if dedupe && len(rec.revisions) > 0 && rec.revisions[len(rec.revisions)-1].Content == content {
		return nil
	}
	rev := ContentRevision{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Content:    content,
		EditedBy:   editedBy,
		EditedAt:   at,
	}
	rec.revisions = append(rec.revisions, rev)
	if n := len(rec.revisions); n > s.cap {
		rec.revisions = append([]ContentRevision(nil), rec.revisions[n-s.cap:]...)
	}
	return &rev
}

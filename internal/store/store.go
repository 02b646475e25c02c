// Package store persists document bodies and their bounded revision history.
// It sits behind the synchronization channel: a failed store call never blocks
// the live relay, it only surfaces as a logged warning at the caller.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrRevisionNotFound = errors.New("revision not found")
)

// DefaultRevisionCap is how many revisions a document retains unless
// configured otherwise.
const DefaultRevisionCap = 10

// Document is the live state of one document plus its retained history.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	EditedBy  string            `json:"editedBy"`
	EditedAt  time.Time         `json:"editedAt"`
	Revisions []ContentRevision `json:"revisions"`
}

// ContentRevision is one persisted full-body snapshot. Revisions form an
// append-only sequence per document; the store evicts the oldest beyond the cap.
type ContentRevision struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Content    string    `json:"content"`
	EditedBy   string    `json:"editedBy"`
	EditedAt   time.Time `json:"editedAt"`
}

// DocumentStore is the persistence boundary of the collaboration core.
type DocumentStore interface {
	// GetDocument returns the live content and retained revisions.
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	// SetDocument upserts the live content and records a revision for it,
	// subject to the same dedupe/cap rules as RecordRevision.
	SetDocument(ctx context.Context, documentID, content, editedBy string) error
	// RecordRevision appends a revision only when content differs from the
	// immediately preceding revision; a nil revision with nil error means the
	// write was deduplicated.
	RecordRevision(ctx context.Context, documentID, content, editedBy string) (*ContentRevision, error)
	// ListRevisions returns revisions most-recent-last.
	ListRevisions(ctx context.Context, documentID string) ([]ContentRevision, error)
	// Restore sets the live content to a historical revision's content and
	// appends that content as a new revision. History is never rewritten, so a
	// restore always grows the sequence even if the content matches the head.
	Restore(ctx context.Context, documentID, revisionID, editedBy string) (*ContentRevision, error)
}

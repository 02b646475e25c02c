// Package protocol defines the wire format of the collaboration channel: a
// small envelope carrying an event name plus one statically-typed payload per
// event. The event set is closed; the router switches over it exhaustively and
// anything outside it is a protocol error.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/prasadu-1619/synchronos/pkg/collab"
)

// Client -> server events.
const (
	EventJoinDocument    = "join-document"
	EventLeaveDocument   = "leave-document"
	EventCursorMove      = "cursor-move"
	EventSelectionChange = "selection-change"
	EventContentChange   = "content-change"
	EventRequestEditLock = "request-edit-lock"
	EventReleaseEditLock = "release-edit-lock"
)

// Server -> client events.
const (
	EventPresenceSnapshot  = "presence-snapshot"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventCursorUpdate      = "cursor-update"
	EventSelectionUpdate   = "selection-update"
	EventContentUpdate     = "content-update"
	EventEditLockGranted   = "edit-lock-granted"
	EventEditLockDenied    = "edit-lock-denied"
	EventDocumentLocked    = "document-locked"
	EventDocumentUnlocked  = "document-unlocked"
	EventEditUnauthorized  = "edit-unauthorized"
)

// Envelope is the outer frame of every message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UserInfo is the client-supplied user block on join. The verified identity
// from the connection's auth handshake takes precedence over Name/Email; Color
// is the one field the client owns.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Color string `json:"color,omitempty"`
}

// ParticipantInfo is the public view of a participant sent to peers.
type ParticipantInfo struct {
	ConnectionID string                 `json:"connectionId"`
	UserID       string                 `json:"userId"`
	Name         string                 `json:"name"`
	Color        string                 `json:"color"`
	Cursor       *collab.CursorPosition `json:"cursor,omitempty"`
}

// --- Client payloads ---

type JoinDocument struct {
	DocumentID string   `json:"documentId"`
	User       UserInfo `json:"user"`
}

type LeaveDocument struct {
	DocumentID string `json:"documentId"`
}

type CursorMove struct {
	DocumentID string                `json:"documentId"`
	Position   collab.CursorPosition `json:"position"`
}

type SelectionChange struct {
	DocumentID string                `json:"documentId"`
	Selection  collab.SelectionRange `json:"selection"`
}

type ContentChange struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	// Caret offset hint peers use to re-clamp their own cursor after applying
	// the snapshot.
	CursorPosition int `json:"cursorPosition"`
}

type RequestEditLock struct {
	DocumentID string `json:"documentId"`
}

type ReleaseEditLock struct {
	DocumentID string `json:"documentId"`
}

// --- Server payloads ---

type PresenceSnapshot struct {
	DocumentID   string            `json:"documentId"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantJoined struct {
	DocumentID  string          `json:"documentId"`
	Participant ParticipantInfo `json:"participant"`
}

type ParticipantLeft struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type CursorUpdate struct {
	DocumentID   string                `json:"documentId"`
	ConnectionID string                `json:"connectionId"`
	UserID       string                `json:"userId"`
	Name         string                `json:"name"`
	Color        string                `json:"color"`
	Position     collab.CursorPosition `json:"position"`
}

type SelectionUpdate struct {
	DocumentID   string                `json:"documentId"`
	ConnectionID string                `json:"connectionId"`
	UserID       string                `json:"userId"`
	Name         string                `json:"name"`
	Color        string                `json:"color"`
	Selection    collab.SelectionRange `json:"selection"`
}

type ContentUpdate struct {
	DocumentID     string `json:"documentId"`
	UserID         string `json:"userId"`
	Content        string `json:"content"`
	CursorPosition int    `json:"cursorPosition"`
}

type EditLockGranted struct {
	DocumentID string `json:"documentId"`
}

type EditLockDenied struct {
	DocumentID string `json:"documentId"`
	Holder     string `json:"holder"`     // connection id of the current holder
	HolderUser string `json:"holderUser"` // user id of the current holder
	HolderName string `json:"holderName"`
}

type DocumentLocked struct {
	DocumentID string `json:"documentId"`
	Holder     string `json:"holder"`
	HolderUser string `json:"holderUser"`
	HolderName string `json:"holderName"`
}

type DocumentUnlocked struct {
	DocumentID string `json:"documentId"`
}

type EditUnauthorized struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

// Marshal wraps a payload in an Envelope and encodes the whole frame.
func Marshal(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// MakeParticipantInfo projects a participant snapshot to its public wire shape.
func MakeParticipantInfo(p collab.ParticipantSnapshot) ParticipantInfo {
	return ParticipantInfo{
		ConnectionID: p.ConnectionID.String(),
		UserID:       p.UserID,
		Name:         p.DisplayName,
		Color:        p.Color,
		Cursor:       p.Cursor,
	}
}

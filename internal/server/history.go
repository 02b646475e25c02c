package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prasadu-1619/synchronos/internal/server/middleware"
	"github.com/prasadu-1619/synchronos/internal/store"
)

// Revision history endpoints. Restore is additive: it appends the chosen
// revision's content as a new revision rather than rewriting history, so the
// websocket peers and the version list stay consistent.

type restoreRequest struct {
	RevisionID string `json:"revisionId"`
}

func (a *App) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	revisions, err := a.docs.ListRevisions(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Document not found"})
			return
		}
		a.logger.Error("Failed to list revisions", slog.String("documentID", documentID), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Error fetching revisions"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "revisions": revisions})
}

func (a *App) handleRestore(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RevisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "revisionId is required"})
		return
	}

	revision, err := a.docs.Restore(r.Context(), documentID, req.RevisionID, reqMeta.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Document not found"})
		case errors.Is(err, store.ErrRevisionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Revision not found"})
		default:
			a.logger.Error("Failed to restore revision",
				slog.String("documentID", documentID),
				slog.String("revisionID", req.RevisionID),
				slog.Any("error", err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Error restoring revision"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "revision": revision})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

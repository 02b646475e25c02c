package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasadu-1619/synchronos/internal/server/middleware"
	"github.com/prasadu-1619/synchronos/internal/store"
	"github.com/prasadu-1619/synchronos/pkg/config"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	docs := store.NewMemoryStore(logger, 0)
	cfg := &config.Config{}
	cfg.Server.Address = ":0"
	cfg.Server.Auth.JWTSecret = testSecret
	app := NewApp(logger, context.Background(), cfg, docs, nil)
	return app, docs
}

func signedCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.IdentityClaims{
		Name: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return &http.Cookie{Name: "session-token", Value: signed}
}

func doRequest(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestRevisionEndpointsRequireAuth(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/revisions", nil)
	rec := doRequest(app, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/documents/doc-1/restore", bytes.NewBufferString(`{"revisionId":"x"}`))
	rec = doRequest(app, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRevisions(t *testing.T) {
	app, docs := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, docs.SetDocument(ctx, "doc-1", "first", "user-a"))
	require.NoError(t, docs.SetDocument(ctx, "doc-1", "second", "user-a"))

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/revisions", nil)
	req.AddCookie(signedCookie(t, "user-a"))
	rec := doRequest(app, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success   bool                    `json:"success"`
		Revisions []store.ContentRevision `json:"revisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Revisions, 2)
	assert.Equal(t, "first", body.Revisions[0].Content)
	assert.Equal(t, "second", body.Revisions[1].Content)
}

func TestListRevisionsUnknownDocument(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-missing/revisions", nil)
	req.AddCookie(signedCookie(t, "user-a"))
	rec := doRequest(app, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreEndpoint(t *testing.T) {
	app, docs := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, docs.SetDocument(ctx, "doc-1", "first", "user-a"))
	require.NoError(t, docs.SetDocument(ctx, "doc-1", "second", "user-a"))

	revisions, err := docs.ListRevisions(ctx, "doc-1")
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"revisionId": revisions[0].ID})
	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/restore", bytes.NewBuffer(payload))
	req.AddCookie(signedCookie(t, "user-b"))
	rec := doRequest(app, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success  bool                  `json:"success"`
		Revision store.ContentRevision `json:"revision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "first", body.Revision.Content)
	// The restorer's identity comes from the token, not the request body.
	assert.Equal(t, "user-b", body.Revision.EditedBy)

	doc, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "first", doc.Content)
	assert.Len(t, doc.Revisions, 3)
}

func TestRestoreValidation(t *testing.T) {
	app, docs := newTestApp(t)
	require.NoError(t, docs.SetDocument(context.Background(), "doc-1", "content", "user-a"))

	// Missing revisionId.
	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/restore", bytes.NewBufferString(`{}`))
	req.AddCookie(signedCookie(t, "user-a"))
	rec := doRequest(app, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown revision.
	req = httptest.NewRequest(http.MethodPost, "/documents/doc-1/restore", bytes.NewBufferString(`{"revisionId":"nope"}`))
	req.AddCookie(signedCookie(t, "user-a"))
	rec = doRequest(app, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

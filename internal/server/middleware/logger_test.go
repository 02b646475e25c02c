package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLoggerIncludesResolvedIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// Stands in for the auth middleware, which fills the metadata after the
	// logger has already passed the request along.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqMeta, ok := ReqMetadataFrom(r.Context())
		if !ok {
			t.Fatal("request metadata missing from context")
		}
		reqMeta.UserID = "user-a"
		w.WriteHeader(http.StatusNoContent)
	})

	h := Chain(inner, RequestMetadataMiddleware(), NewRequestLogger(logger))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/doc-1/revisions", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "userID=user-a") {
		t.Errorf("log entry missing resolved userID: %s", out)
	}
	if !strings.Contains(out, "uri=/documents/doc-1/revisions") {
		t.Errorf("log entry missing request URI: %s", out)
	}
}

// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation and participant recording

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/souk-gateway/internal/store"
)

func newTestGate(t *testing.T) (*Gate, *JWTVerifier, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	verifier := newTestVerifier(t)
	return NewGate(verifier, s, nil), verifier, s
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	gate, verifier, s := newTestGate(t)

	token, err := verifier.Generate(Identity{ID: "cust-1", Role: store.RoleCustomer, DisplayName: "Amira"}, time.Hour)
	require.NoError(t, err)

	var got Identity
	var ok bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(gate)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, "cust-1", got.ID)
	assert.Equal(t, store.RoleCustomer, got.Role)
	assert.Equal(t, "Amira", got.DisplayName)

	p, err := s.GetParticipant(t.Context(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, store.RoleCustomer, p.Role)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	gate, verifier, _ := newTestGate(t)

	expired, err := verifier.Generate(Identity{ID: "cust-1", Role: store.RoleCustomer}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"garbage token", "Bearer nope", "invalid token"},
		{"expired token", "Bearer " + expired, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(gate)(handler).ServeHTTP(rec, req)

			assert.False(t, called, "handler must not run")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, errMsg := extractBearerToken("Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", token)
	assert.Empty(t, errMsg)
}

func TestHTTPAuthMiddleware_StoreUnavailable(t *testing.T) {
	gate, verifier, s := newTestGate(t)
	require.NoError(t, s.Close())

	token, err := verifier.Generate(Identity{ID: "cust-1", Role: store.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(gate)(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

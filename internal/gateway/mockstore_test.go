// ABOUTME: HTTP API tests on the in-memory store for states SQLite tests can't easily reach
// ABOUTME: Covers archived threads and recovery after a store outage

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/souk-gateway/internal/store"
	"github.com/2389/souk-gateway/internal/wire"
)

func newMockEnv(t *testing.T) (*apiEnv, *store.MockStore) {
	t.Helper()
	ms := store.NewMockStore()
	gw, err := NewWithStore(testConfig(t), ms, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	env := &apiEnv{
		gw:       gw,
		srv:      srv,
		customer: tokenFor(t, "cust-1", "customer", "Amira"),
		seller:   tokenFor(t, "sell-1", "seller", "Spice Stall"),
	}
	for _, tok := range []string{env.customer, env.seller} {
		resp, _ := env.do(t, http.MethodGet, "/api/me", tok, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	return env, ms
}

func TestAPI_ArchivedThreadIsConflict(t *testing.T) {
	env, ms := newMockEnv(t)
	thread := env.openThread(t, env.customer, "sell-1")

	require.NoError(t, ms.SetThreadStatus(thread.ID, store.ThreadStatusArchived))

	resp, body := env.post(t, env.customer, thread.ID, "still there?")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, errorBody(t, body))

	// History stays readable
	resp, _ = env.do(t, http.MethodGet, "/api/threads/"+thread.ID+"/messages", env.customer, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RecoversAfterStoreOutage(t *testing.T) {
	env, ms := newMockEnv(t)
	thread := env.openThread(t, env.customer, "sell-1")

	ms.FailWith(assert.AnError)

	resp, _ := env.post(t, env.customer, thread.ID, "hello")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	rec := httptest.NewRecorder()
	env.gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ms.FailWith(nil)

	resp, body := env.post(t, env.customer, thread.ID, "hello")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	msgs, err := ms.ListMessages(t.Context(), thread.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "the failed post must not have stored anything")
	assert.Equal(t, "hello", msgs[0].Content)

	resp, body = env.do(t, http.MethodGet, "/api/threads/"+thread.ID+"/messages", env.seller, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list wire.MessageList
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, int64(1), list.Messages[0].Seq)
}

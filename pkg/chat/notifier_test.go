package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNotifySummaryPostsToResolvedDMChannel(t *testing.T) {
	var postedChannel string

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users.list":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"members": []map[string]any{
					{"id": "U123", "name": "alice", "profile": map[string]any{}},
				},
			})
		case "/conversations.open":
			postedChannel = "D999"
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": map[string]any{"id": "D999"}})
		case "/chat.postMessage":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "D999", "ts": "123.456"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	})

	n := NewWithAPIURL("token", "alice", server.URL+"/", nil)
	sent, err := n.NotifySummary(context.Background(), model.RunReport{ErrorsAnalyzed: 3})

	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "D999", postedChannel)
}

func TestNotifySummarySkipsWhenUserNotFound(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/users.list" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "members": []map[string]any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	n := NewWithAPIURL("token", "nobody", server.URL+"/", nil)
	sent, err := n.NotifySummary(context.Background(), model.RunReport{})

	require.NoError(t, err)
	assert.False(t, sent)
}

func TestUserIDCachesLookupAcrossCalls(t *testing.T) {
	calls := 0
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/users.list" {
			calls++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"members": []map[string]any{
					{"id": "U1", "name": "bob", "profile": map[string]any{}},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	n := NewWithAPIURL("token", "bob", server.URL+"/", nil)
	id1, err := n.userID("bob")
	require.NoError(t, err)
	id2, err := n.userID("bob")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, calls)
}

func TestFindMessageByFingerprintMatchesRecentHistory(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/conversations.history" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"text": "NightWatch: 5 errors analyzed, 2 fixes found", "ts": "111.222"},
				},
				"has_more": false,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	n := NewWithAPIURL("token", "alice", server.URL+"/", nil)
	ts, err := n.findMessageByFingerprint(context.Background(), "D1", "NightWatch:")

	require.NoError(t, err)
	assert.Equal(t, "111.222", ts)
}

func TestFindMessageByFingerprintReturnsEmptyWhenNoMatch(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": []map[string]any{}, "has_more": false})
	})

	n := NewWithAPIURL("token", "alice", server.URL+"/", nil)
	ts, err := n.findMessageByFingerprint(context.Background(), "D1", "NightWatch:")

	require.NoError(t, err)
	assert.Empty(t, ts)
}

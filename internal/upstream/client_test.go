package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginParsesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "rest", req["eauth"])
		assert.Equal(t, "alice", req["username"])

		w.Write([]byte(`{"return": [{"token": "tok", "start": 100, "expire": 200, "user": "alice", "eauth": "rest", "perms": ["test.ping"]}]}`))
	}))
	defer server.Close()

	token, err := New(server.URL, false).Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.Token)
	assert.Equal(t, float64(100), token.Start)
	assert.Equal(t, float64(200), token.Expire)
	assert.JSONEq(t, `["test.ping"]`, string(token.Perms))
}

// Salt serialises an empty perms list as an empty object; the client
// normalises it to an empty array.
func TestLoginNormalisesObjectPerms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"return": [{"token": "tok", "start": 1, "expire": 2, "user": "u", "eauth": "rest", "perms": {}}]}`))
	}))
	defer server.Close()

	token, err := New(server.URL, false).Login(context.Background(), "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(token.Perms))
}

func TestLoginStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusForbidden, ErrForbidden},
		{http.StatusInternalServerError, ErrFailedRequest},
		{http.StatusBadGateway, ErrFailedRequest},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := New(server.URL, false).Login(context.Background(), "u", "p")
		server.Close()
		require.Error(t, err)
		upstreamErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, tc.kind, upstreamErr.Kind, "status %d", tc.status)
	}
}

func TestRunJobStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusServiceUnavailable, ErrFailedRequest},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := New(server.URL, false).RunJobLocal(context.Background(), "tok", "*", "glob", "test.ping", nil, nil)
		server.Close()
		require.Error(t, err)
		upstreamErr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, tc.kind, upstreamErr.Kind, "status %d", tc.status)
	}
}

func TestRunJobLocalPayload(t *testing.T) {
	var captured []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Auth-Token"))
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		captured = append(captured, payload)
		w.Write([]byte(`{"return": [{"minion": true}]}`))
	}))
	defer server.Close()

	result, err := New(server.URL, false).RunJobLocal(context.Background(), "tok", "web*", "", "test.ping", []interface{}{"a"}, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"minion": true}`, string(result))

	require.Len(t, captured, 1)
	payload := captured[0]
	assert.Equal(t, "local", payload["client"])
	assert.Equal(t, "web*", payload["tgt"])
	assert.Equal(t, "glob", payload["tgt_type"], "empty tgt_type defaults to glob")
	assert.Equal(t, "test.ping", payload["fun"])
	assert.Equal(t, []interface{}{"a"}, payload["arg"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, payload["kwarg"])
}

func TestRunJobWheelUnwrapsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"return": [{"data": {"return": {"x": 1}}}]}`))
	}))
	defer server.Close()

	result, err := New(server.URL, false).RunJobWheel(context.Background(), "tok", "key.finger", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"return": {"x": 1}}`, string(result))
}

func TestGetKeysFlattensBuckets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"return": [{"data": {"return": {
			"minions": {"m1": "aa:bb"},
			"minions_pre": {"m2": "cc:dd"},
			"minions_rejected": {"m3": "ee:ff"},
			"minions_denied": {"m4": "00:11"}
		}}}]}`))
	}))
	defer server.Close()

	keys, err := New(server.URL, false).GetKeys(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, keys, 4)

	byID := map[string]MinionKey{}
	for _, k := range keys {
		byID[k.ID] = k
	}
	assert.Equal(t, KeyStateAccepted, byID["m1"].State)
	assert.Equal(t, KeyStatePending, byID["m2"].State)
	assert.Equal(t, KeyStateRejected, byID["m3"].State)
	assert.Equal(t, KeyStateDenied, byID["m4"].State)
	assert.Equal(t, "aa:bb", byID["m1"].Finger)
}

func TestAcceptKeyValidatesTransition(t *testing.T) {
	response := `{"return": [{"data": {"return": {"minions": ["m1"]}}}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "wheel", payload["client"])
		assert.Equal(t, "key.accept_dict", payload["fun"])
		w.Write([]byte(response))
	}))
	defer server.Close()

	client := New(server.URL, false)
	require.NoError(t, client.AcceptKey(context.Background(), "tok", KeyStatePending, "m1"))

	// A response without the accepted bucket is a failed transition.
	response = `{"return": [{"data": {"return": {}}}]}`
	err := client.AcceptKey(context.Background(), "tok", KeyStatePending, "m1")
	require.Error(t, err)
	upstreamErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrMissingExpectedData, upstreamErr.Kind)
}

func TestDeleteKeyChecksSuccess(t *testing.T) {
	response := `{"return": [{"data": {"success": true}}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(response))
	}))
	defer server.Close()

	client := New(server.URL, false)
	require.NoError(t, client.DeleteKey(context.Background(), "tok", KeyStateAccepted, "m1"))

	response = `{"return": [{"data": {"success": false}}]}`
	err := client.DeleteKey(context.Background(), "tok", KeyStateAccepted, "m1")
	require.Error(t, err)
}

func TestParseKeyState(t *testing.T) {
	for _, alias := range []string{"minions", "accepted"} {
		state, ok := ParseKeyState(alias)
		assert.True(t, ok)
		assert.Equal(t, KeyStateAccepted, state)
	}
	_, ok := ParseKeyState("bogus")
	assert.False(t, ok)
}

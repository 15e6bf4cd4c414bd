package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store/memory"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

// fakeMaster is an upstream stub whose /login counts calls and always
// succeeds.
func fakeMaster(t *testing.T, loginCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls.Add(1)
		now := time.Now().Unix()
		fmt.Fprintf(w, `{"return": [{"token": "upstream-tok-%d", "start": %d, "expire": %d, "user": "u", "eauth": "rest", "perms": []}]}`,
			loginCalls.Load(), now, now+43200)
	})
	return httptest.NewServer(mux)
}

func seedSession(t *testing.T, s *memory.Store, start int64) *model.AuthToken {
	t.Helper()
	ctx := context.Background()
	user := &model.User{ID: "usr_test", Username: "tester", Perms: "[]"}
	require.NoError(t, s.CreateUser(ctx, user))

	authToken := &model.AuthToken{
		ID:       "auth_0123456789abcdef0123456789abcdef",
		UserID:   user.ID,
		IssuedAt: time.Now(),
		UpstreamToken: &model.UpstreamToken{
			Token:  "upstream-tok-0",
			Start:  start,
			Expire: start + 43200,
			User:   "tester",
			EAuth:  "rest",
			Perms:  "[]",
		},
	}
	require.NoError(t, s.CreateAuthToken(ctx, authToken))
	return authToken
}

func TestWithRetryRenewsMaturedTokenOnce(t *testing.T) {
	var loginCalls atomic.Int32
	master := fakeMaster(t, &loginCalls)
	defer master.Close()

	s := memory.New()
	bridge := New(s, upstream.New(master.URL, false), time.Hour)
	authToken := seedSession(t, s, time.Now().Unix()-700)

	var fnCalls int
	result, err := WithRetry(context.Background(), bridge, "tester", authToken, func() (string, error) {
		fnCalls++
		if fnCalls == 1 {
			return "", &upstream.Error{Kind: upstream.ErrUnauthorized, Message: "401"}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, fnCalls, "original call plus exactly one retry")
	assert.Equal(t, int32(1), loginCalls.Load(), "exactly one renewal login")

	// The renewed upstream token was persisted.
	stored, err := s.GetAuthToken(context.Background(), authToken.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.UpstreamToken)
	assert.Equal(t, "upstream-tok-1", stored.UpstreamToken.Token)
}

func TestWithRetryFreshTokenSurfacesInternalError(t *testing.T) {
	var loginCalls atomic.Int32
	master := fakeMaster(t, &loginCalls)
	defer master.Close()

	s := memory.New()
	bridge := New(s, upstream.New(master.URL, false), time.Hour)
	authToken := seedSession(t, s, time.Now().Unix()-300)

	var fnCalls int
	_, err := WithRetry(context.Background(), bridge, "tester", authToken, func() (string, error) {
		fnCalls++
		return "", &upstream.Error{Kind: upstream.ErrUnauthorized, Message: "401"}
	})

	require.Error(t, err)
	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok, "expected an AppError, got %T", err)
	assert.Equal(t, apperr.CodeInternalError, appErr.Code)
	assert.Equal(t, 1, fnCalls, "no retry for a token inside the grace window")
	assert.Equal(t, int32(0), loginCalls.Load())
}

func TestWithRetryPassesThroughOtherErrors(t *testing.T) {
	s := memory.New()
	bridge := New(s, nil, time.Hour)
	authToken := seedSession(t, s, time.Now().Unix()-700)

	wantErr := &upstream.Error{Kind: upstream.ErrForbidden, Message: "403"}
	var fnCalls int
	_, err := WithRetry(context.Background(), bridge, "tester", authToken, func() (string, error) {
		fnCalls++
		return "", wantErr
	})
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, fnCalls)
}

func TestValidate(t *testing.T) {
	s := memory.New()
	bridge := New(s, nil, time.Hour)
	ctx := context.Background()

	short, err := bridge.Validate(ctx, "too-short")
	require.NoError(t, err)
	assert.Nil(t, short, "tokens under the minimum length are rejected without a lookup")

	unknown, err := bridge.Validate(ctx, "auth_00000000000000000000000000000000")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	authToken := seedSession(t, s, time.Now().Unix())
	found, err := bridge.Validate(ctx, authToken.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, authToken.UserID, found.UserID)
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	s := memory.New()
	bridge := New(s, nil, time.Minute)
	ctx := context.Background()

	user := &model.User{ID: "usr_x", Username: "old", Perms: "[]"}
	require.NoError(t, s.CreateUser(ctx, user))
	stale := &model.AuthToken{
		ID:       "auth_ffffffffffffffffffffffffffffffff",
		UserID:   user.ID,
		IssuedAt: time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, s.CreateAuthToken(ctx, stale))

	got, err := bridge.Validate(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "sessions past the lifespan are rejected")
}

func TestMintTokenFormat(t *testing.T) {
	id := generateTokenID()
	assert.True(t, len(id) >= 20)
	assert.Contains(t, id, "auth_")

	var parsed map[string]any
	assert.Error(t, json.Unmarshal([]byte(id), &parsed), "token is opaque, not structured")
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/resalt-bridge/resalt/internal/listener"
	"github.com/resalt-bridge/resalt/internal/middleware"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/session"
	"github.com/resalt-bridge/resalt/internal/store/memory"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

const testServiceToken = "service-secret-0123456789"

// testStack wires a memory store, a fake master, and the full route table
// the way cmd/server does, returning the router and its collaborators.
func testStack(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			http.NotFound(w, r)
			return
		}
		now := time.Now().Unix()
		fmt.Fprintf(w, `{"return": [{"token": "up-tok", "start": %d, "expire": %d, "user": "u", "eauth": "rest", "perms": []}]}`, now, now+43200)
	}))
	t.Cleanup(master.Close)

	s := memory.New()
	client := upstream.New(master.URL, false)
	bridge := session.New(s, client, time.Hour)
	eventListener := listener.New(client, s, testServiceToken)

	handlers := New(s, bridge, client, eventListener, nil, testServiceToken)

	router := gin.New()
	group := router.Group("/api/1")
	handlers.RegisterRoutes(group, middleware.Auth(s, bridge), middleware.RequirePermission)
	return router, s
}

func seedUser(t *testing.T, s *memory.Store, username, password, perms string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	user := &model.User{ID: "usr_" + username, Username: username, PasswordHash: &hashStr, Perms: perms}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func doJSON(router *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLoginTokenFlow(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "admin", "correct-horse", "[]")

	// Login succeeds and yields a bearer token.
	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "admin", "password": "correct-horse"}`, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var login struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
		Expiry int64  `json:"expiry"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &login))
	assert.Equal(t, "usr_admin", login.UserID)
	assert.GreaterOrEqual(t, len(login.Token), 20)
	assert.Greater(t, login.Expiry, time.Now().Unix())

	// The bearer resolves to the logged-in user.
	res = doJSON(router, http.MethodGet, "/api/1/auth/user", "", login.Token)
	require.Equal(t, http.StatusOK, res.Code)
	var user struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &user))
	assert.Equal(t, "usr_admin", user.ID)
	assert.Equal(t, "admin", user.Username)

	// No bearer is a 401.
	res = doJSON(router, http.MethodGet, "/api/1/auth/user", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginUsernameIsCaseInsensitive(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "admin", "correct-horse", "[]")

	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "ADMIN", "password": "correct-horse"}`, "")
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "admin", "correct-horse", "[]")

	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "admin", "password": "wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "ghost", "password": "wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestQueryParameterToken(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "admin", "correct-horse", "[]")

	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "admin", "password": "correct-horse"}`, "")
	require.Equal(t, http.StatusOK, res.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &login))

	res = doJSON(router, http.MethodGet, "/api/1/auth/user?token="+url.QueryEscape(login.Token), "", "")
	assert.Equal(t, http.StatusOK, res.Code)
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMasterCallbackValidatesServiceIdentity(t *testing.T) {
	router, _ := testStack(t)

	res := postForm(router, "/api/1/auth/token", url.Values{
		"username": {listener.SystemServiceUsername},
		"password": {testServiceToken},
	})
	require.Equal(t, http.StatusOK, res.Code)
	var perms []string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &perms))
	assert.Contains(t, perms, ".*")
	assert.Contains(t, perms, "@runner")
	assert.Contains(t, perms, "@wheel")

	res = postForm(router, "/api/1/auth/token", url.Values{
		"username": {listener.SystemServiceUsername},
		"password": {"wrong-secret"},
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMasterCallbackValidatesLocalToken(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "alice", "password-123", `[{"@resalt": ["minion.list"]}]`)

	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "alice", "password": "password-123"}`, "")
	require.Equal(t, http.StatusOK, res.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &login))

	res = postForm(router, "/api/1/auth/token", url.Values{
		"username": {"alice"},
		"password": {login.Token},
	})
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[{"@resalt": ["minion.list"]}]`, res.Body.String())

	res = postForm(router, "/api/1/auth/token", url.Values{
		"username": {"alice"},
		"password": {"auth_00000000000000000000000000000000"},
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestPermissionGateOnRoutes(t *testing.T) {
	router, s := testStack(t)
	seedUser(t, s, "viewer", "password-123", `[{"@resalt": ["event.list"]}]`)

	res := doJSON(router, http.MethodPost, "/api/1/auth/login", `{"username": "viewer", "password": "password-123"}`, "")
	require.Equal(t, http.StatusOK, res.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &login))

	res = doJSON(router, http.MethodGet, "/api/1/events", "", login.Token)
	assert.Equal(t, http.StatusOK, res.Code, "granted permission passes")

	res = doJSON(router, http.MethodGet, "/api/1/minions", "", login.Token)
	assert.Equal(t, http.StatusForbidden, res.Code, "missing permission is a 403")
}

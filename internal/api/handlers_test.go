package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/auth"
	"ripple/internal/config"
	"ripple/internal/db"
	"ripple/internal/gateway"
	"ripple/internal/models"
)

type testServer struct {
	store  *db.DB
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		JWTSecret:     "test-secret",
		JWTTTL:        time.Hour,
		ClientOrigin:  "http://localhost:3000",
		APIRateRPS:    1000,
		APIRateBurst:  1000,
		AuthRateRPS:   1000,
		AuthRateBurst: 1000,
	}
	hub := gateway.NewHub(store)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTTTL, store)
	handlers := NewHandlers(store, hub, verifier, cfg)
	return &testServer{store: store, router: handlers.NewRouter()}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// register creates an account and returns its token and user.
func (s *testServer) register(t *testing.T, username string) (string, models.User) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: username,
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[models.LoginResponse](t, rec)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t)

	token, user := s.register(t, "alice")
	assert.Equal(t, "alice", user.Username)

	// Duplicate username rejected.
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: "alice", Password: "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Short password rejected.
	rec = s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: "bob", Password: "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Username: "alice", Password: "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[models.LoginResponse](t, rec)
	assert.NotEmpty(t, login.Token)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Username: "alice", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[models.User](t, rec)
	assert.Equal(t, user.ID, me.ID)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/users", "/api/conversations", "/api/auth/me"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(t, http.MethodGet, "/api/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAndSearchUsers(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")
	s.register(t, "bob")
	s.register(t, "bobby")

	rec := s.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[[]models.User](t, rec)
	// The caller is excluded from the listing.
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, "alice", u.Username)
		assert.Empty(t, u.Password)
	}

	rec = s.do(t, http.MethodGet, "/api/users/search?q=bob", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeBody[[]models.User](t, rec)
	require.Len(t, found, 2)
	assert.Equal(t, "bob", found[0].Username)

	rec = s.do(t, http.MethodGet, "/api/users/search", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateConversationDedupe(t *testing.T) {
	s := newTestServer(t)
	aliceToken, _ := s.register(t, "alice")
	_, bob := s.register(t, "bob")

	type convResponse struct {
		Conversation models.Conversation `json:"conversation"`
		Existed      bool                `json:"existed"`
	}

	rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, models.CreateConversationRequest{
		Type:         models.ConversationPrivate,
		Participants: []int64{bob.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[convResponse](t, rec)
	assert.False(t, first.Existed)
	assert.Len(t, first.Conversation.Participants, 2)

	// Same pair again: the existing conversation comes back.
	rec = s.do(t, http.MethodPost, "/api/conversations", aliceToken, models.CreateConversationRequest{
		Type:         models.ConversationPrivate,
		Participants: []int64{bob.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[convResponse](t, rec)
	assert.True(t, second.Existed)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestConversationAccessControl(t *testing.T) {
	s := newTestServer(t)
	aliceToken, _ := s.register(t, "alice")
	_, bob := s.register(t, "bob")
	malloryToken, _ := s.register(t, "mallory")

	rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, models.CreateConversationRequest{
		Type:         models.ConversationPrivate,
		Participants: []int64{bob.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]json.RawMessage](t, rec)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(created["conversation"], &conv))

	path := fmt.Sprintf("/api/conversations/%d", conv.ID)
	rec = s.do(t, http.MethodGet, path, aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Non-participants cannot see or delete it.
	rec = s.do(t, http.MethodGet, path, malloryToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, path, malloryToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageLifecycleOverREST(t *testing.T) {
	s := newTestServer(t)
	aliceToken, _ := s.register(t, "alice")
	bobToken, bob := s.register(t, "bob")
	malloryToken, _ := s.register(t, "mallory")

	rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, models.CreateConversationRequest{
		Type:         models.ConversationPrivate,
		Participants: []int64{bob.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]json.RawMessage](t, rec)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(created["conversation"], &conv))

	sendPath := fmt.Sprintf("/api/messages/%d", conv.ID)
	rec = s.do(t, http.MethodPost, sendPath, aliceToken, models.SendMessageRequest{Content: "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decodeBody[models.Message](t, rec)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, models.MessageSent, msg.Status)

	// Outsiders get 403 from the lifecycle handler.
	rec = s.do(t, http.MethodPost, sendPath, malloryToken, models.SendMessageRequest{Content: "intrude"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	msgPath := fmt.Sprintf("/api/messages/%d", msg.ID)
	rec = s.do(t, http.MethodPut, msgPath, bobToken, models.EditMessageRequest{Content: "hacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, msgPath, aliceToken, models.EditMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decodeBody[models.Message](t, rec)
	assert.True(t, edited.Edited)
	assert.Equal(t, "hello", edited.Content)

	rec = s.do(t, http.MethodDelete, msgPath, aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Editing a deleted message conflicts.
	rec = s.do(t, http.MethodPut, msgPath, aliceToken, models.EditMessageRequest{Content: "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMessagesPagination(t *testing.T) {
	s := newTestServer(t)
	aliceToken, _ := s.register(t, "alice")
	_, bob := s.register(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, models.CreateConversationRequest{
		Type:         models.ConversationPrivate,
		Participants: []int64{bob.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]json.RawMessage](t, rec)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(created["conversation"], &conv))

	sendPath := fmt.Sprintf("/api/messages/%d", conv.ID)
	for i := 1; i <= 5; i++ {
		rec = s.do(t, http.MethodPost, sendPath, aliceToken, models.SendMessageRequest{
			Content: fmt.Sprintf("m%d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	type pageResponse struct {
		Messages   []models.Message `json:"messages"`
		Pagination struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Total int `json:"total"`
			Pages int `json:"pages"`
		} `json:"pagination"`
	}

	rec = s.do(t, http.MethodGet, sendPath+"?page=1&limit=2", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[pageResponse](t, rec)
	assert.Equal(t, 5, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)
	require.Len(t, page.Messages, 2)
	// Newest page first, oldest-first within the page.
	assert.Equal(t, "m4", page.Messages[0].Content)
	assert.Equal(t, "m5", page.Messages[1].Content)

	rec = s.do(t, http.MethodGet, sendPath+"?page=3&limit=2", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[pageResponse](t, rec)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].Content)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t)
	// Rebuild with a tight auth budget to observe the limiter.
	cfg := &config.Config{
		JWTSecret:     "test-secret",
		JWTTTL:        time.Hour,
		ClientOrigin:  "http://localhost:3000",
		APIRateRPS:    1000,
		APIRateBurst:  1000,
		AuthRateRPS:   1,
		AuthRateBurst: 2,
	}
	hub := gateway.NewHub(s.store)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTTTL, s.store)
	router := NewHandlers(s.store, hub, verifier, cfg).NewRouter()

	body := models.LoginRequest{Username: "ghost", Password: "nope"}
	var last int
	for i := 0; i < 4; i++ {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", &buf)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

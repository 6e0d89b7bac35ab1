package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"askgpt/internal/auth"
	"askgpt/internal/chat"
	"askgpt/internal/intent"
	"askgpt/internal/llm"
	"askgpt/internal/router"
	"askgpt/internal/store"
)

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, _ string, _ bool) intent.Intent {
	return intent.CasualChat
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(_ context.Context, _ intent.Intent, message, _ string, _ []llm.Message) router.Result {
	return router.Result{Text: "echo: " + message, Label: "GPT-4o-mini"}
}

type recordingInvalidator struct {
	mu      sync.Mutex
	dropped []uint
}

func (r *recordingInvalidator) Invalidate(_ context.Context, _ uint, conversationID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, conversationID)
	return nil
}

type testEnv struct {
	handler     http.Handler
	store       *store.Store
	invalidator *recordingInvalidator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	log := zap.NewNop()
	authSvc := auth.New(st, "test-secret", time.Minute)
	chatSvc := chat.NewService(st, nil, stubClassifier{}, stubDispatcher{}, time.Second, log)
	invalidator := &recordingInvalidator{}
	srv := New("http://localhost:5173", authSvc, chatSvc, st, invalidator, log)

	return &testEnv{handler: srv.Handler(), store: st, invalidator: invalidator}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/register", "", gin.H{"username": username, "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/login", "", gin.H{"username": username, "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/register", "", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/register", "", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Username already registered")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestChatAnonymous(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat", "", gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Response       string  `json:"response"`
		ModelUsed      string  `json:"model_used"`
		Intent         string  `json:"intent"`
		Image          *string `json:"image"`
		ConversationID *uint   `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "echo: hello", envelope.Response)
	require.Equal(t, "GPT-4o-mini", envelope.ModelUsed)
	require.Equal(t, "casual_chat", envelope.Intent)
	require.Nil(t, envelope.Image)
	require.Nil(t, envelope.ConversationID, "anonymous turns get no conversation")
}

func TestChatAuthenticatedStartsConversation(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/chat", token, gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		ConversationID *uint `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.ConversationID)

	user, err := env.store.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	convs, err := env.store.ListConversations(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "hello", convs[0].Title)
}

func TestChatRequiresMessage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat", "", gin.H{"image": "b64"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryShapesRows(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	ctx := context.Background()
	user, err := env.store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	conv, err := env.store.CreateConversation(ctx, user.ID, "seeded")
	require.NoError(t, err)
	require.NoError(t, env.store.AppendMessage(ctx, &store.Message{
		UserID: user.ID, ConversationID: conv.ID, Role: "user", Content: "hi", Image: "img-b64",
	}))
	require.NoError(t, env.store.AppendMessage(ctx, &store.Message{
		UserID: user.ID, ConversationID: conv.ID, Role: "assistant", Content: "hello back",
	}))

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/history?conversation_id=%d", conv.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []struct {
		Text   string  `json:"text"`
		Sender string  `json:"sender"`
		Image  *string `json:"image"`
		Model  string  `json:"model"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "user", rows[0].Sender)
	require.NotNil(t, rows[0].Image)
	require.Equal(t, "ai", rows[1].Sender)
	require.Nil(t, rows[1].Image)
	require.Equal(t, "History", rows[0].Model)
}

func TestHistoryRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/history", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationDeletion(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	ctx := context.Background()
	user, err := env.store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	conv, err := env.store.CreateConversation(ctx, user.ID, "doomed")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/conversations/%d", conv.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "deleted")
	require.Equal(t, []uint{conv.ID}, env.invalidator.dropped,
		"deleting a conversation must drop its cached window")

	other, err := env.store.CreateConversation(ctx, user.ID, "also doomed")
	require.NoError(t, err)
	rec = env.do(t, http.MethodDelete, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "all_deleted")
	require.Contains(t, env.invalidator.dropped, other.ID,
		"purging conversations must drop every cached window")

	convs, err := env.store.ListConversations(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulse-chat/config"
	"pulse-chat/internal/gateway"
	"pulse-chat/internal/handler"
	"pulse-chat/internal/proxy"
	"pulse-chat/internal/repository/memory"
	"pulse-chat/internal/services"
	"pulse-chat/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, health HealthFunc) http.Handler {
	t.Helper()
	cfg := &config.Config{AppPort: "0", AppMode: TestMode, JWTSecret: "test-secret", JWTExpiryHours: 1, CORSAllowedOrigins: []string{"https://app.example"}}
	store := memory.NewStore()
	access := proxy.NewAccessControl()
	auth := services.NewAuthService(store.Users(), cfg)
	users := services.NewUserService(store.Users(), nil)
	conversations := services.NewConversationService(store, access)
	messages := services.NewMessageService(store, access)
	groups := services.NewGroupService(store, access, "https://chat.example/invite")
	gw := gateway.New(gateway.Deps{Auth: auth, Users: users, Conversations: conversations, Messages: messages, Groups: groups}, gateway.DefaultOptions(), nil)

	srv := New(cfg, logger.NewNop())
	srv.SetupRoutes(&Handlers{
		Messages:    handler.NewMessageHandler(messages, gw),
		Chats:       handler.NewChatHandler(conversations, messages, gw),
		Groups:      handler.NewGroupHandler(groups, gw),
		Attachments: handler.NewAttachmentHandler(nil),
		Users:       handler.NewUserHandler(users),
		WebSocket:   gateway.NewWebSocketHandler(gw),
	}, auth, nil, health)
	return srv.Handler()
}

func TestPingAndHealth(t *testing.T) {
	h := newTestServer(t, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down := newTestServer(t, func(context.Context) error { return errors.New("dial tcp: refused") })
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "refused")
}

func TestRoutesRequireAuth(t *testing.T) {
	h := newTestServer(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/chats"},
		{http.MethodPost, "/v1/messages/private"},
		{http.MethodGet, "/v1/groups/search"},
		{http.MethodPost, "/v1/attachments/presign"},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chats", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/chats", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

func newTestRouter() (http.Handler, *chatservice.Controller) {
	ctrl := chatservice.NewController(chatservice.NewStore(), ai.NewEchoEmitter(0, nil), nil)
	return NewRouter(ctrl, zap.NewNop()), ctrl
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouterMountsAPI(t *testing.T) {
	r, ctrl := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/stream?message=Hello", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `"event":"end"`))

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"title":"Hello"`)
	assert.Contains(t, resp.Body.String(), ctrl.Store().ActiveID())
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/middleware"
	"github.com/yourusername/exam-api/internal/websocket"
	"github.com/yourusername/exam-api/pkg/auth"
)

func createTestWSHandler(t *testing.T, origins ...string) (*WSHandler, *websocket.Hub, *auth.JWTService) {
	t.Helper()
	jwtService, err := auth.NewJWTService("ws-secret", "", time.Minute)
	require.NoError(t, err)
	hub := websocket.NewHub(zap.NewNop())
	manager := websocket.NewManager(hub, zap.NewNop())
	return NewWSHandler(hub, manager, jwtService, origins, zap.NewNop()), hub, jwtService
}

func TestIssueTicket(t *testing.T) {
	h, _, jwtService := createTestWSHandler(t)
	c, w := newTestGinContext(http.MethodPost, "/api/ws/ticket", nil)
	c.Set(middleware.ContextStudentID, "stu-1")
	c.Set(middleware.ContextRole, auth.RoleStudent)

	h.IssueTicket(c)

	require.Equal(t, http.StatusOK, w.Code)
	ticket := parseJSONResponse(t, w)["ticket"].(string)
	claims, err := jwtService.ParseWSTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.StudentID)
}

func TestHandleConnection_RejectsMissingOrBadTicket(t *testing.T) {
	h, _, jwtService := createTestWSHandler(t)
	access, err := jwtService.GenerateToken(&auth.JWTCustomClaims{StudentID: "stu-1", Role: auth.RoleStudent})
	require.NoError(t, err)

	for name, query := range map[string]string{
		"missing":      "",
		"garbage":      "?ticket=abc",
		"access token": "?ticket=" + access,
	} {
		t.Run(name, func(t *testing.T) {
			c, w := newTestGinContext(http.MethodGet, "/ws"+query, nil)
			h.HandleConnection(c)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHandleConnection_RegistersClient(t *testing.T) {
	h, hub, jwtService := createTestWSHandler(t, "https://exam.example.com")
	router := gin.New()
	router.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ticket, err := jwtService.GenerateWSTicket("stu-1", auth.RoleStudent)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?ticket=" + ticket

	// foreign origin is refused
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := gorillaws.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	header = http.Header{"Origin": []string{"https://exam.example.com"}}
	conn, _, err := gorillaws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendJSONToUser("stu-1", websocket.Event{Type: websocket.RESULT_FINALIZED}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), websocket.RESULT_FINALIZED)
}

// ============================================================================
// Health
// ============================================================================

func TestHealthCheck(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	h := NewHealthHandler(map[string]HealthCheck{"database": up, "redis": nil})
	c, w := newTestGinContext(http.MethodGet, "/health", nil)
	h.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.NotContains(t, resp["components"], "redis")

	h = NewHealthHandler(map[string]HealthCheck{"database": up, "redis": down})
	c, w = newTestGinContext(http.MethodGet, "/health", nil)
	h.HealthCheck(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = parseJSONResponse(t, w)
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "down", resp["components"].(map[string]interface{})["redis"])
}

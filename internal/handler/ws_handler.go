package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/middleware"
	"github.com/yourusername/exam-api/internal/websocket"
	"github.com/yourusername/exam-api/pkg/auth"
)

// TicketService issues and verifies websocket tickets
type TicketService interface {
	GenerateWSTicket(studentID, role string) (string, error)
	ParseWSTicket(ticket string) (*auth.JWTCustomClaims, error)
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub      *websocket.Hub
	manager  *websocket.Manager
	tickets  TicketService
	upgrader gorillaws.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a WebSocket handler. Browser origins must appear in
// allowedOrigins, the same list CORS uses.
func NewWSHandler(hub *websocket.Hub, manager *websocket.Manager, tickets TicketService, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	h := &WSHandler{
		hub:     hub,
		manager: manager,
		tickets: tickets,
		logger:  logger.Named("WSHandler"),
	}
	h.upgrader = gorillaws.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       h.originChecker(allowedOrigins),
		EnableCompression: true,
	}
	return h
}

func (h *WSHandler) originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		h.logger.Warn("rejected websocket origin", zap.String("origin", origin))
		return false
	}
}

// IssueTicket returns a short-lived ticket for the websocket upgrade
// POST /api/ws/ticket
func (h *WSHandler) IssueTicket(c *gin.Context) {
	studentID := c.GetString(middleware.ContextStudentID)
	role := c.GetString(middleware.ContextRole)

	ticket, err := h.tickets.GenerateWSTicket(studentID, role)
	if err != nil {
		h.logger.Error("generate ws ticket", zap.String("student_id", studentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// HandleConnection upgrades an authenticated request
// GET /ws?ticket=...
func (h *WSHandler) HandleConnection(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter"})
		return
	}

	claims, err := h.tickets.ParseWSTicket(ticket)
	if err != nil {
		h.logger.Info("invalid ws ticket", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed", zap.String("student_id", claims.StudentID), zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn, claims.StudentID, claims.Role, h.logger)
	client.StartPumps(h.manager.HandleMessage)
}

package websocket

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// Event is the envelope of every websocket message
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Manager routes client messages and publishes server events.
// It implements service.ResultNotifier.
type Manager struct {
	hub            HubInterface
	messageHandler map[string]func(data json.RawMessage, client *Client) error
	logger         *zap.Logger
}

// NewManager creates a websocket manager with the ping handler registered
func NewManager(hub HubInterface, logger *zap.Logger) *Manager {
	m := &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
		logger:         logger.Named("WebSocketManager"),
	}
	m.RegisterHandler(PING, m.handlePing)
	return m
}

// RegisterHandler sets the handler of one client message type
func (m *Manager) RegisterHandler(eventType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[eventType] = handler
}

// HandleMessage dispatches one client message. A returned error closes the connection.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err
	}

	handler, ok := m.messageHandler[event.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil
	}
	return handler(event.Data, client)
}

func (m *Manager) handlePing(_ json.RawMessage, client *Client) error {
	return m.SendEventToUser(client.UserID, PONG, nil)
}

// SendErrorToClient reports a rejected message without closing the connection
func (m *Manager) SendErrorToClient(client *Client, code, message string) {
	err := m.SendEventToUser(client.UserID, SERVER_ERROR, map[string]string{
		"code":    code,
		"message": message,
	})
	if err != nil {
		m.logger.Warn("failed to send error to client", zap.String("student_id", client.UserID), zap.Error(err))
	}
}

// BroadcastEvent sends an event to all clients
func (m *Manager) BroadcastEvent(eventType string, data interface{}) error {
	return m.hub.BroadcastJSON(Event{Type: eventType, Data: data})
}

// SendEventToUser sends an event to one student
func (m *Manager) SendEventToUser(userID, eventType string, data interface{}) error {
	return m.hub.SendJSONToUser(userID, Event{Type: eventType, Data: data})
}

// ResultFinalized notifies the student whose attempt was scored
func (m *Manager) ResultFinalized(studentID string, testID uint, status entity.ResultStatus) {
	err := m.SendEventToUser(studentID, RESULT_FINALIZED, ResultFinalizedEvent{TestID: testID, Status: string(status)})
	if err != nil {
		m.logger.Warn("result event not delivered", zap.String("student_id", studentID), zap.Uint("test_id", testID), zap.Error(err))
	}
}

// RankingsUpdated tells every client that a leaderboard changed
func (m *Manager) RankingsUpdated(testID uint, ranked int) {
	if err := m.BroadcastEvent(RANKINGS_UPDATED, RankingsUpdatedEvent{TestID: testID, Ranked: ranked}); err != nil {
		m.logger.Warn("rankings event not delivered", zap.Uint("test_id", testID), zap.Error(err))
	}
}

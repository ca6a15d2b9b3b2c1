package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/pkg/monitoring"
)

// Hub keeps the websocket connections of this instance, grouped by student.
// With a ClusterHub attached, messages also reach the other instances.
type Hub struct {
	instanceID string

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	cluster *ClusterHub
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		instanceID: uuid.NewString(),
		clients:    make(map[string]map[*Client]struct{}),
		logger:     logger.Named("WebSocketHub"),
	}
}

// AttachCluster enables cross-instance delivery
func (h *Hub) AttachCluster(cluster *ClusterHub) {
	h.cluster = cluster
}

// GetInstanceID implements ClusterAwareHub
func (h *Hub) GetInstanceID() string {
	return h.instanceID
}

// Register adds a client
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.UserID] = conns
	}
	conns[c] = struct{}{}
	h.mu.Unlock()

	monitoring.WebsocketClients.Inc()
	h.logger.Debug("client registered", zap.String("student_id", c.UserID), zap.String("conn_id", c.ConnectionID))
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.send)
	h.mu.Unlock()

	monitoring.WebsocketClients.Dec()
	h.logger.Debug("client unregistered", zap.String("student_id", c.UserID), zap.String("conn_id", c.ConnectionID))
}

// ClientCount returns the number of local connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// BroadcastBytesLocal implements ClusterAwareHub. It returns the number of
// connections the message was queued for.
func (h *Hub) BroadcastBytesLocal(message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, conns := range h.clients {
		for c := range conns {
			if c.enqueue(message) {
				sent++
			}
		}
	}
	return sent
}

// SendToUser implements ClusterAwareHub
func (h *Hub) SendToUser(userID string, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for c := range h.clients[userID] {
		if c.enqueue(message) {
			sent = true
		}
	}
	return sent
}

// BroadcastJSON implements HubInterface
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	h.BroadcastBytesLocal(data)
	if h.cluster != nil {
		return h.cluster.BroadcastToCluster(context.Background(), data)
	}
	return nil
}

// SendJSONToUser implements HubInterface. The student may be connected to
// another instance, so the message is published to the cluster even when
// no local connection exists.
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal direct message: %w", err)
	}
	h.SendToUser(userID, data)
	if h.cluster != nil {
		return h.cluster.SendToUserInCluster(context.Background(), userID, data)
	}
	return nil
}

// Close drops every local connection
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
}

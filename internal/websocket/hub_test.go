package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/domain/entity"
)

// memoryPubSub fans every published message out to all subscribers.
type memoryPubSub struct {
	mu   sync.Mutex
	subs []chan []byte
}

func (p *memoryPubSub) Publish(_ context.Context, _ string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		s <- message
	}
	return nil
}

func (p *memoryPubSub) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan []byte, 10)
	p.subs = append(p.subs, ch)
	return ch, nil
}

func (p *memoryPubSub) Close() error { return nil }

func newTestClient(hub *Hub, userID string) *Client {
	return &Client{
		UserID:       userID,
		ConnectionID: userID + "-conn",
		hub:          hub,
		send:         make(chan []byte, 4),
		logger:       zap.NewNop(),
	}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Event{}
	}
}

func TestHub_SendToUserOnlyReachesThatStudent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := newTestClient(hub, "a")
	b := newTestClient(hub, "b")
	hub.Register(a)
	hub.Register(b)

	require.NoError(t, hub.SendJSONToUser("a", Event{Type: PONG}))

	assert.Equal(t, PONG, receive(t, a).Type)
	assert.Len(t, b.send, 0)
}

func TestHub_BroadcastAndCount(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a1 := newTestClient(hub, "a")
	a2 := newTestClient(hub, "a")
	b := newTestClient(hub, "b")
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	assert.Equal(t, 3, hub.ClientCount())

	sent := hub.BroadcastBytesLocal([]byte(`{"type":"x"}`))

	assert.Equal(t, 3, sent)
}

func TestHub_UnregisterClosesSendOnce(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newTestClient(hub, "a")
	hub.Register(c)

	hub.Unregister(c)
	hub.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.SendToUser("a", []byte("x")))
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newTestClient(hub, "a")
	hub.Register(c)

	for i := 0; i < cap(c.send); i++ {
		require.True(t, hub.SendToUser("a", []byte("x")))
	}
	assert.False(t, hub.SendToUser("a", []byte("x")))
}

func TestClusterHub_RelaysBetweenInstances(t *testing.T) {
	// Arrange: two instances sharing one pubsub
	bus := &memoryPubSub{}
	hub1 := NewHub(zap.NewNop())
	hub2 := NewHub(zap.NewNop())
	c1 := NewClusterHub(hub1, bus, "", zap.NewNop())
	c2 := NewClusterHub(hub2, bus, "", zap.NewNop())
	hub1.AttachCluster(c1)
	hub2.AttachCluster(c2)
	require.NoError(t, c1.Start())
	require.NoError(t, c2.Start())
	defer c1.Stop()
	defer c2.Stop()

	local := newTestClient(hub1, "s1")
	remote := newTestClient(hub2, "s1")
	hub1.Register(local)
	hub2.Register(remote)

	// Act
	require.NoError(t, hub1.SendJSONToUser("s1", Event{Type: RESULT_FINALIZED}))

	// Assert: delivered once on each instance
	assert.Equal(t, RESULT_FINALIZED, receive(t, local).Type)
	assert.Equal(t, RESULT_FINALIZED, receive(t, remote).Type)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, local.send, 0, "own cluster message must not be delivered twice")
}

func TestManager_ResultEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	m := NewManager(hub, zap.NewNop())
	s1 := newTestClient(hub, "s1")
	s2 := newTestClient(hub, "s2")
	hub.Register(s1)
	hub.Register(s2)

	m.ResultFinalized("s1", 7, entity.ResultStatusCompleted)
	m.RankingsUpdated(7, 2)

	ev := receive(t, s1)
	assert.Equal(t, RESULT_FINALIZED, ev.Type)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, float64(7), data["test_id"])
	assert.Equal(t, "completed", data["status"])

	assert.Equal(t, RANKINGS_UPDATED, receive(t, s1).Type)
	assert.Equal(t, RANKINGS_UPDATED, receive(t, s2).Type)
}

func TestManager_HandleMessage(t *testing.T) {
	hub := NewHub(zap.NewNop())
	m := NewManager(hub, zap.NewNop())
	c := newTestClient(hub, "s1")
	hub.Register(c)

	require.NoError(t, m.HandleMessage([]byte(`{"type":"ping"}`), c))
	assert.Equal(t, PONG, receive(t, c).Type)

	require.NoError(t, m.HandleMessage([]byte(`{"type":"nope"}`), c))
	assert.Equal(t, SERVER_ERROR, receive(t, c).Type)

	assert.Error(t, m.HandleMessage([]byte(`not json`), c))
	assert.Equal(t, SERVER_ERROR, receive(t, c).Type)
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultClusterChannel is the Redis channel shared by all instances.
const DefaultClusterChannel = "exam:ws:cluster"

const (
	clusterBroadcast = "broadcast"
	clusterDirect    = "direct"
)

// ClusterMessage is passed between hub instances
type ClusterMessage struct {
	MessageType string          `json:"type"`
	RecipientID string          `json:"recipient_id,omitempty"`
	InstanceID  string          `json:"instance_id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ClusterHub relays hub messages through a PubSubProvider so that events
// reach students connected to other instances.
type ClusterHub struct {
	parent   ClusterAwareHub
	provider PubSubProvider
	channel  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewClusterHub creates a relay for parent
func NewClusterHub(parent ClusterAwareHub, provider PubSubProvider, channel string, logger *zap.Logger) *ClusterHub {
	if channel == "" {
		channel = DefaultClusterChannel
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ClusterHub{
		parent:   parent,
		provider: provider,
		channel:  channel,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("ClusterHub").With(zap.String("instance_id", parent.GetInstanceID())),
	}
}

// Start subscribes to the cluster channel
func (ch *ClusterHub) Start() error {
	msgs, err := ch.provider.Subscribe(ch.ctx, ch.channel)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", ch.channel, err)
	}

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		for {
			select {
			case <-ch.ctx.Done():
				return
			case data, ok := <-msgs:
				if !ok {
					ch.logger.Warn("cluster channel closed")
					return
				}
				ch.deliver(data)
			}
		}
	}()

	ch.logger.Info("cluster relay started", zap.String("channel", ch.channel))
	return nil
}

// Stop ends the subscription
func (ch *ClusterHub) Stop() {
	ch.cancel()
	ch.wg.Wait()
}

func (ch *ClusterHub) deliver(data []byte) {
	var msg ClusterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		ch.logger.Warn("invalid cluster message", zap.Error(err))
		return
	}
	// own messages were already delivered locally
	if msg.InstanceID == ch.parent.GetInstanceID() {
		return
	}

	switch msg.MessageType {
	case clusterBroadcast:
		ch.parent.BroadcastBytesLocal(msg.Payload)
	case clusterDirect:
		if msg.RecipientID != "" {
			ch.parent.SendToUser(msg.RecipientID, msg.Payload)
		}
	default:
		ch.logger.Warn("unknown cluster message type", zap.String("type", msg.MessageType))
	}
}

// BroadcastToCluster publishes a broadcast for the other instances
func (ch *ClusterHub) BroadcastToCluster(ctx context.Context, payload []byte) error {
	return ch.publish(ctx, ClusterMessage{MessageType: clusterBroadcast, Payload: payload})
}

// SendToUserInCluster publishes a direct message for the other instances
func (ch *ClusterHub) SendToUserInCluster(ctx context.Context, userID string, payload []byte) error {
	return ch.publish(ctx, ClusterMessage{MessageType: clusterDirect, RecipientID: userID, Payload: payload})
}

func (ch *ClusterHub) publish(ctx context.Context, msg ClusterMessage) error {
	msg.InstanceID = ch.parent.GetInstanceID()
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ch.provider.Publish(ctx, ch.channel, data)
}

// RedisPubSub implements PubSubProvider on Redis PUBLISH/SUBSCRIBE
type RedisPubSub struct {
	client redis.UniversalClient

	mu   sync.Mutex
	subs []*redis.PubSub

	logger *zap.Logger
}

// NewRedisPubSub wraps an existing client
func NewRedisPubSub(client redis.UniversalClient, logger *zap.Logger) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}
	return &RedisPubSub{client: client, logger: logger.Named("RedisPubSub")}, nil
}

// Publish implements PubSubProvider
func (p *RedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements PubSubProvider. The returned channel closes when ctx is done.
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, pubsub)
	p.mu.Unlock()

	out := make(chan []byte, 100)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					p.logger.Warn("subscriber is slow, cluster message dropped", zap.String("channel", channel))
				}
			}
		}
	}()
	return out, nil
}

// Close closes every subscription
func (p *RedisPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, s := range p.subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.subs = nil
	return errors.Join(errs...)
}

package websocket

import "context"

// HubInterface is what Manager needs from a hub.
type HubInterface interface {
	// BroadcastJSON sends a JSON value to every client of the cluster
	BroadcastJSON(v interface{}) error

	// SendJSONToUser sends a JSON value to every connection of one student
	SendJSONToUser(userID string, v interface{}) error

	// ClientCount returns the number of local connections
	ClientCount() int
}

// ClusterAwareHub receives messages published by other instances.
type ClusterAwareHub interface {
	// BroadcastBytesLocal delivers to local clients only
	BroadcastBytesLocal(message []byte) int

	// SendToUser delivers to local connections of one student
	SendToUser(userID string, message []byte) bool

	GetInstanceID() string
}

// PubSubProvider carries cluster messages between instances.
type PubSubProvider interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

package domain

import (
	"context"
)

// EventBus defines the interface for push notifications between the store
// and its subscribers. Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages. Safe to call more than once.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"natsToken" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds
}

// Topic names published by the store and the forwarder.
const (
	TopicComplaintsChanged = "cipher.complaints.changed"
	TopicAlertForwarded    = "cipher.alerts.forwarded"
)

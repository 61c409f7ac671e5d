package nats

import (
	"github.com/nats-io/nats.go"
)

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetConnection() *nats.Conn
}

// SubscriptionManager handles subject subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(topics []string) error
	Unsubscribe(topics []string) error
	UnsubscribeAll() error
	GetSubscribedTopics() []string
	IsSubscribed() bool
}

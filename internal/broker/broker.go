// Package broker defines the transport-facing contracts for receiving
// sensor observations from a message bus
package broker

import (
	"context"
	"strings"
	"time"
)

// ObservationHandler receives every message delivered on a subscribed
// topic. Implementations must not block the delivery callback.
type ObservationHandler interface {
	// HandleObservation is invoked once per delivered message
	HandleObservation(topic string, payload []byte)

	// Topics returns the distinct rule topics to subscribe to
	Topics() []string
}

// Broker manages a connection to a message bus and feeds received
// observations to an ObservationHandler
type Broker interface {
	// Start connects the subscriptions for the handler's current topics
	Start(ctx context.Context) error

	// Resubscribe realigns subscriptions with the handler's current
	// topics, called after the rule set changes
	Resubscribe() error

	// Close gracefully disconnects from the bus
	Close()

	// GetStats returns current broker statistics
	GetStats() BrokerStats
}

// BrokerStats holds statistics for a broker connection
type BrokerStats struct {
	MessagesReceived uint64
	LastReconnect    time.Time
	Errors           uint64
}

// WidenTopic appends a multi-level wildcard so the subscription covers
// the rule topic and everything beneath it. Rule matching stays exact;
// the widened filter only controls what the bus delivers. Topics that
// already carry a wildcard are left untouched.
func WidenTopic(topic string) string {
	if strings.ContainsAny(topic, "#+") {
		return topic
	}
	return topic + "/#"
}

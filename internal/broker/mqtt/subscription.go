package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-alert-bridge/internal/broker"
)

// SubscriptionManagerImpl implements the SubscriptionManager interface
type SubscriptionManagerImpl struct {
	broker     *MQTTBroker
	conn       ConnectionManager
	topics     []string
	subscribed bool
	mu         sync.RWMutex
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(b *MQTTBroker) SubscriptionManager {
	return &SubscriptionManagerImpl{
		broker: b,
		conn:   b.conn,
		topics: make([]string, 0),
	}
}

// Subscribe subscribes to the provided topics. Each topic is widened with
// a multi-level wildcard so subtopics are delivered too; exact matching
// against rules happens downstream.
func (s *SubscriptionManagerImpl) Subscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	s.topics = topics
	s.broker.logger.Info("subscribing to topics", "count", len(topics))

	for _, topic := range topics {
		filter := broker.WidenTopic(topic)
		if token := s.conn.GetClient().Subscribe(filter, 0, s.HandleMessage); token.Wait() && token.Error() != nil {
			s.broker.logger.Error("failed to subscribe to topic",
				"topic", topic,
				"filter", filter,
				"error", token.Error())
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
		s.broker.logger.Debug("subscribed to topic", "topic", topic, "filter", filter)
	}

	s.subscribed = true
	return nil
}

// Unsubscribe removes subscriptions for the provided topics
func (s *SubscriptionManagerImpl) Unsubscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	for _, topic := range topics {
		filter := broker.WidenTopic(topic)
		if token := s.conn.GetClient().Unsubscribe(filter); token.Wait() && token.Error() != nil {
			s.broker.logger.Error("failed to unsubscribe from topic",
				"topic", topic,
				"error", token.Error())
			return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, token.Error())
		}
		s.broker.logger.Debug("unsubscribed from topic", "topic", topic)
	}

	// Update topics list
	remaining := make([]string, 0)
	topicSet := make(map[string]struct{})
	for _, t := range topics {
		topicSet[t] = struct{}{}
	}

	for _, t := range s.topics {
		if _, exists := topicSet[t]; !exists {
			remaining = append(remaining, t)
		}
	}
	s.topics = remaining

	if len(s.topics) == 0 {
		s.subscribed = false
	}

	return nil
}

// HandleMessage forwards received MQTT messages to the observation handler
func (s *SubscriptionManagerImpl) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	atomic.AddUint64(&s.broker.stats.MessagesReceived, 1)

	s.broker.logger.Debug("received message",
		"topic", msg.Topic(),
		"payloadSize", len(msg.Payload()))

	s.broker.handler.HandleObservation(msg.Topic(), msg.Payload())
}

// ResubscribeAll resubscribes to all topics after a reconnection. Clean
// sessions lose server-side subscriptions, so this always re-issues them.
func (s *SubscriptionManagerImpl) ResubscribeAll() error {
	s.mu.RLock()
	topics := make([]string, len(s.topics))
	copy(topics, s.topics)
	s.mu.RUnlock()

	if len(topics) > 0 {
		return s.Subscribe(topics)
	}
	return nil
}

// GetSubscribedTopics returns the list of currently subscribed topics
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, len(s.topics))
	copy(topics, s.topics)
	return topics
}

// IsSubscribed returns whether there are active subscriptions
func (s *SubscriptionManagerImpl) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

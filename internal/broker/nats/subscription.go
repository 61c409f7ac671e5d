package nats

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"mqtt-alert-bridge/internal/broker"
)

// SubscriptionManagerImpl implements SubscriptionManager for NATS
type SubscriptionManagerImpl struct {
	broker     *NATSBroker
	conn       ConnectionManager
	topics     []string
	subs       map[string][]*nats.Subscription
	subscribed bool
	mu         sync.RWMutex
}

// NewSubscriptionManager creates a new NATS subscription manager
func NewSubscriptionManager(b *NATSBroker, conn ConnectionManager) SubscriptionManager {
	return &SubscriptionManagerImpl{
		broker: b,
		conn:   conn,
		topics: make([]string, 0),
		subs:   make(map[string][]*nats.Subscription),
	}
}

// Subscribe subscribes to the provided topics. Topics arrive in MQTT
// format; each maps to the NATS subjects from subjectsFor. Matching
// against rules stays exact downstream.
func (s *SubscriptionManagerImpl) Subscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to NATS server")
	}

	s.topics = topics
	s.broker.logger.Info("subscribing to topics", "count", len(topics))

	for _, topic := range topics {
		if err := s.subscribeTopic(topic); err != nil {
			s.broker.logger.Error("failed to subscribe to topic",
				"topic", topic,
				"error", err)
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}
		s.broker.logger.Debug("subscribed to topic",
			"topic", topic,
			"subjects", subjectsFor(topic))
	}

	s.subscribed = true
	return nil
}

// subjectsFor returns the NATS subjects subscribed for a rule topic. The
// widened subject alone would drop the topic itself: unlike MQTT's "#",
// the ">" wildcard matches one or more tokens, so "home.temp.>" does not
// match "home.temp". The exact subject has to be subscribed alongside it.
func subjectsFor(topic string) []string {
	exact := ToNATSSubject(topic)
	widened := ToNATSSubject(broker.WidenTopic(topic))
	if widened == exact {
		return []string{exact}
	}
	return []string{exact, widened}
}

// subscribeTopic handles subscription to a single topic
func (s *SubscriptionManagerImpl) subscribeTopic(topic string) error {
	natsConn := s.conn.GetConnection()

	for _, subject := range subjectsFor(topic) {
		sub, err := natsConn.Subscribe(subject, func(msg *nats.Msg) {
			s.handleMessage(msg)
		})
		if err != nil {
			return err
		}

		// Store subscriptions for later cleanup
		s.subs[topic] = append(s.subs[topic], sub)
	}

	return nil
}

// Unsubscribe removes subscriptions for provided topics
func (s *SubscriptionManagerImpl) Unsubscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, topic := range topics {
		for _, sub := range s.subs[topic] {
			if err := sub.Unsubscribe(); err != nil {
				s.broker.logger.Error("failed to unsubscribe from topic",
					"topic", topic,
					"error", err)
				return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
			}
		}
		delete(s.subs, topic)
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

// UnsubscribeAll unsubscribes from all topics
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, subs := range s.subs {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				s.broker.logger.Error("failed to unsubscribe from topic",
					"topic", topic,
					"error", err)
			}
		}
		s.broker.logger.Debug("unsubscribed from topic", "topic", topic)
	}

	s.subs = make(map[string][]*nats.Subscription)
	s.topics = make([]string, 0)
	s.subscribed = false

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

// handleMessage forwards a received NATS message to the observation
// handler, converting the subject back to MQTT topic form
func (s *SubscriptionManagerImpl) handleMessage(msg *nats.Msg) {
	atomic.AddUint64(&s.broker.stats.MessagesReceived, 1)

	topic := ToMQTTTopic(msg.Subject)

	s.broker.logger.Debug("received message",
		"topic", topic,
		"subject", msg.Subject,
		"payloadSize", len(msg.Data))

	s.broker.handler.HandleObservation(topic, msg.Data)
}

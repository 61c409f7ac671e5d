package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-alert-bridge/config"
	"mqtt-alert-bridge/internal/broker"
	"mqtt-alert-bridge/internal/logger"
	"mqtt-alert-bridge/internal/metrics"
)

// MQTTBroker implements the broker.Broker interface for MQTT
type MQTTBroker struct {
	logger  *logger.Logger
	config  *config.Config
	handler broker.ObservationHandler
	metrics *metrics.Metrics
	stats   broker.BrokerStats

	conn ConnectionManager
	sub  SubscriptionManager

	mu sync.RWMutex
}

// NewBroker creates a new MQTT broker instance. The initial connection is
// established here; subscriptions are wired up by Start.
func NewBroker(cfg *config.Config, log *logger.Logger, handler broker.ObservationHandler, metricsService *metrics.Metrics) (broker.Broker, error) {
	b := &MQTTBroker{
		logger:  log,
		config:  cfg,
		handler: handler,
		metrics: metricsService,
		stats: broker.BrokerStats{
			LastReconnect: time.Now(),
		},
	}

	// Initialize connection manager first
	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	// Subscription manager depends on the connection
	b.sub = NewSubscriptionManager(b)

	return b, nil
}

// Start implements broker.Broker interface
func (b *MQTTBroker) Start(ctx context.Context) error {
	topics := b.handler.Topics()
	if len(topics) == 0 {
		b.logger.Warn("no rule topics to subscribe to")
		return nil
	}

	if err := b.sub.Subscribe(topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	return nil
}

// Resubscribe realigns subscriptions with the handler's current topics
func (b *MQTTBroker) Resubscribe() error {
	current := b.sub.GetSubscribedTopics()
	if len(current) > 0 {
		if err := b.sub.Unsubscribe(current); err != nil {
			return err
		}
	}

	topics := b.handler.Topics()
	if len(topics) == 0 {
		return nil
	}
	return b.sub.Subscribe(topics)
}

// Close implements broker.Broker interface
func (b *MQTTBroker) Close() {
	b.logger.Info("shutting down mqtt broker")
	b.conn.Disconnect()
}

// GetStats implements broker.Broker interface. Counters are read
// atomically; mu guards LastReconnect, which the connect handlers write.
func (b *MQTTBroker) GetStats() broker.BrokerStats {
	b.mu.RLock()
	lastReconnect := b.stats.LastReconnect
	b.mu.RUnlock()

	return broker.BrokerStats{
		MessagesReceived: atomic.LoadUint64(&b.stats.MessagesReceived),
		Errors:           atomic.LoadUint64(&b.stats.Errors),
		LastReconnect:    lastReconnect,
	}
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *MQTTBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}

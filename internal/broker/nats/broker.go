package nats

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

// NATSBroker implements the broker.Broker interface for NATS
type NATSBroker struct {
	logger  *logger.Logger
	config  *config.Config
	handler broker.ObservationHandler
	metrics *metrics.Metrics
	stats   broker.BrokerStats

	conn ConnectionManager
	sub  SubscriptionManager

	mu sync.RWMutex
	wg sync.WaitGroup
}

// NewBroker creates a new NATS broker instance
func NewBroker(cfg *config.Config, log *logger.Logger, handler broker.ObservationHandler, metricsService *metrics.Metrics) (broker.Broker, error) {
	b := &NATSBroker{
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

	b.sub = NewSubscriptionManager(b, b.conn)

	return b, nil
}

// Start implements broker.Broker interface
func (b *NATSBroker) Start(ctx context.Context) error {
	topics := b.handler.Topics()
	if len(topics) == 0 {
		b.logger.Warn("no rule topics to subscribe to")
	} else if err := b.sub.Subscribe(topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	// Release subscriptions when the context is cancelled
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-ctx.Done()
		b.logger.Info("context done, unsubscribing from all subjects")
		b.sub.UnsubscribeAll()
	}()

	return nil
}

// Resubscribe realigns subscriptions with the handler's current topics
func (b *NATSBroker) Resubscribe() error {
	if err := b.sub.UnsubscribeAll(); err != nil {
		return err
	}

	topics := b.handler.Topics()
	if len(topics) == 0 {
		return nil
	}
	return b.sub.Subscribe(topics)
}

// Close implements broker.Broker interface
func (b *NATSBroker) Close() {
	b.logger.Info("shutting down NATS broker")

	b.sub.UnsubscribeAll()
	b.conn.Disconnect()
	b.wg.Wait()
}

// GetStats implements broker.Broker interface. Counters are read
// atomically; mu guards LastReconnect, which the reconnect handler writes.
func (b *NATSBroker) GetStats() broker.BrokerStats {
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
func (b *NATSBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}

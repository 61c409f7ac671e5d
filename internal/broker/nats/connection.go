package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-alert-bridge/internal/metrics"
)

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	broker *NATSBroker
	conn   *nats.Conn
}

// NewConnectionManager creates a new NATS connection manager
func NewConnectionManager(broker *NATSBroker) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		broker: broker,
	}

	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Connect establishes connection to the NATS server
func (cm *ConnectionManagerImpl) Connect() error {
	if len(cm.broker.config.NATS.URLs) == 0 {
		return fmt.Errorf("no NATS server URLs provided")
	}

	opts := []nats.Option{
		nats.Name(cm.broker.config.NATS.ClientID),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ReconnectHandler(cm.handleReconnect),
		nats.ClosedHandler(cm.handleClosed),
	}

	if cm.broker.config.NATS.Username != "" {
		opts = append(opts, nats.UserInfo(
			cm.broker.config.NATS.Username,
			cm.broker.config.NATS.Password))
	}

	if cm.broker.config.NATS.TLS.Enable {
		opts = append(opts, nats.ClientCert(
			cm.broker.config.NATS.TLS.CertFile,
			cm.broker.config.NATS.TLS.KeyFile,
		))

		if cm.broker.config.NATS.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cm.broker.config.NATS.TLS.CAFile))
		}
	}

	cm.broker.logger.Info("connecting to NATS server", "urls", cm.broker.config.NATS.URLs)

	var err error
	cm.conn, err = nats.Connect(cm.broker.config.NATS.URLs[0], opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
	})

	cm.broker.logger.Info("connected to NATS server", "url", cm.conn.ConnectedUrl())

	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	if cm.conn != nil {
		cm.broker.logger.Info("disconnecting from NATS server")
		cm.conn.Close()
	}
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.conn != nil && cm.conn.IsConnected()
}

// GetConnection returns the NATS connection
func (cm *ConnectionManagerImpl) GetConnection() *nats.Conn {
	return cm.conn
}

// NATS connection event handlers

func (cm *ConnectionManagerImpl) handleDisconnect(conn *nats.Conn, err error) {
	cm.broker.logger.Error("disconnected from NATS server", "error", err)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

func (cm *ConnectionManagerImpl) handleReconnect(conn *nats.Conn) {
	cm.broker.logger.Info("reconnected to NATS server", "url", conn.ConnectedUrl())

	cm.broker.mu.Lock()
	cm.broker.stats.LastReconnect = time.Now()
	cm.broker.mu.Unlock()

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
		m.IncReconnects()
	})

	// NATS restores subscriptions itself; nothing to replay here
}

func (cm *ConnectionManagerImpl) handleClosed(conn *nats.Conn) {
	cm.broker.logger.Warn("NATS connection closed")

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

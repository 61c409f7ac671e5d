package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for the bridge
type Metrics struct {
	messagesTotal      *prometheus.CounterVec
	ruleMatchesTotal   prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	suppressedTotal    prometheus.Counter
	parseErrorsTotal   prometheus.Counter
	brokerConnected    prometheus.Gauge
	brokerReconnects   prometheus.Counter
	rulesActive        prometheus.Gauge
	queueDepth         prometheus.Gauge
	processUptime      prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
// A nil registry is allowed for tests; metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbridge_messages_total",
				Help: "Total observations by processing status",
			},
			[]string{"status"},
		),
		ruleMatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alertbridge_rule_matches_total",
				Help: "Total rule trigger evaluations that matched",
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbridge_notifications_total",
				Help: "Total notification dispatch attempts by outcome",
			},
			[]string{"status"},
		),
		suppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alertbridge_dispatches_suppressed_total",
				Help: "Total dispatches suppressed by the rate limiter",
			},
		),
		parseErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alertbridge_payload_parse_errors_total",
				Help: "Total observations dropped due to non-numeric payloads",
			},
		),
		brokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertbridge_broker_connection_status",
				Help: "Broker connection status (1 connected, 0 disconnected)",
			},
		),
		brokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alertbridge_broker_reconnects_total",
				Help: "Total broker reconnection attempts",
			},
		),
		rulesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertbridge_rules_active",
				Help: "Number of alert rules in the active snapshot",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertbridge_queue_depth",
				Help: "Observations waiting in the processing queue",
			},
		),
		processUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertbridge_uptime_seconds",
				Help: "Seconds since process start",
			},
		),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.messagesTotal,
			m.ruleMatchesTotal,
			m.notificationsTotal,
			m.suppressedTotal,
			m.parseErrorsTotal,
			m.brokerConnected,
			m.brokerReconnects,
			m.rulesActive,
			m.queueDepth,
			m.processUptime,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// IncMessagesTotal increments the message counter for a status
// (received, processed, dropped, error)
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// IncRuleMatches increments the rule match counter
func (m *Metrics) IncRuleMatches() {
	m.ruleMatchesTotal.Inc()
}

// IncNotificationsTotal increments the notification counter for an outcome
// (success, error)
func (m *Metrics) IncNotificationsTotal(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}

// IncSuppressed increments the rate-limit suppression counter
func (m *Metrics) IncSuppressed() {
	m.suppressedTotal.Inc()
}

// IncParseErrors increments the payload parse error counter
func (m *Metrics) IncParseErrors() {
	m.parseErrorsTotal.Inc()
}

// SetConnectionStatus sets the broker connection gauge
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.brokerConnected.Set(1)
	} else {
		m.brokerConnected.Set(0)
	}
}

// IncReconnects increments the broker reconnect counter
func (m *Metrics) IncReconnects() {
	m.brokerReconnects.Inc()
}

// SetRulesActive sets the active rules gauge
func (m *Metrics) SetRulesActive(count float64) {
	m.rulesActive.Set(count)
}

// SetQueueDepth sets the processing queue depth gauge
func (m *Metrics) SetQueueDepth(depth float64) {
	m.queueDepth.Set(depth)
}

// MetricsCollector periodically refreshes derived gauges
type MetricsCollector struct {
	metrics   *Metrics
	interval  time.Duration
	startTime time.Time

	mu         sync.RWMutex
	depthFunc  func() float64
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewMetricsCollector creates a collector updating gauges every interval
func NewMetricsCollector(m *Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		metrics:   m,
		interval:  interval,
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// SetQueueDepthFunc registers the source for the queue depth gauge
func (c *MetricsCollector) SetQueueDepthFunc(fn func() float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depthFunc = fn
}

// Start begins the collection loop
func (c *MetricsCollector) Start() {
	go func() {
		defer close(c.doneChan)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the collection loop
func (c *MetricsCollector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *MetricsCollector) collect() {
	c.metrics.processUptime.Set(time.Since(c.startTime).Seconds())

	c.mu.RLock()
	fn := c.depthFunc
	c.mu.RUnlock()

	if fn != nil {
		c.metrics.SetQueueDepth(fn())
	}
}

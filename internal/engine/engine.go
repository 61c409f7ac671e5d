// Package engine drives the per-observation pipeline: parse the payload,
// match threshold rules, rate-limit, notify, log.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-alert-bridge/internal/limiter"
	"mqtt-alert-bridge/internal/logger"
	"mqtt-alert-bridge/internal/metrics"
	"mqtt-alert-bridge/internal/notify"
	"mqtt-alert-bridge/internal/rule"
	"mqtt-alert-bridge/internal/stats"
)

// Store is the subset of the storage layer the engine reads
type Store interface {
	ListActiveRules(ctx context.Context) ([]rule.Rule, error)
	FriendlyNames(ctx context.Context) (map[string]string, error)
	RecordSeenTopic(ctx context.Context, topic string, ts int64) error
}

// Config holds engine worker pool configuration
type Config struct {
	Workers   int
	QueueSize int
}

// snapshot is an immutable view of the active rule set, swapped atomically
// on refresh. The evaluation path never mutates it.
type snapshot struct {
	rules []rule.Rule
	names map[string]string
}

// Engine is the dispatch coordinator. Observations are fed through a
// bounded queue into a worker pool; per-rule rate-limit serialization is
// handled by the limiter.
type Engine struct {
	cfg      Config
	store    Store
	limiter  *limiter.Limiter
	notifier notify.Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
	stats    *stats.StatsCollector

	snap    atomic.Pointer[snapshot]
	jobChan chan rule.Observation

	now       func() time.Time
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an engine and starts its worker pool. The rule snapshot is
// empty until RefreshRules is called; until then observations are dropped
// as unmatched.
func New(cfg Config, store Store, lim *limiter.Limiter, notifier notify.Notifier, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if st == nil {
		st = stats.NewStatsCollector()
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		limiter:  lim,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		stats:    st,
		jobChan:  make(chan rule.Observation, cfg.QueueSize),
		now:      time.Now,
	}
	e.snap.Store(&snapshot{names: map[string]string{}})

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

// RefreshRules reloads the active rule set and friendly names from the
// store and swaps the snapshot. Called at start and whenever the admin
// surface changes configuration.
func (e *Engine) RefreshRules(ctx context.Context) error {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	names, err := e.store.FriendlyNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to load friendly names: %w", err)
	}

	e.snap.Store(&snapshot{rules: rules, names: names})

	e.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetRulesActive(float64(len(rules)))
	})

	e.logger.Info("rule snapshot refreshed", "count", len(rules))
	return nil
}

// Rules returns the current snapshot's rules
func (e *Engine) Rules() []rule.Rule {
	return e.snap.Load().rules
}

// Topics returns the distinct topics of the current snapshot, in rule order
func (e *Engine) Topics() []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, r := range e.snap.Load().rules {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		topics = append(topics, r.Topic)
	}
	return topics
}

// QueueDepth reports observations waiting in the processing queue
func (e *Engine) QueueDepth() float64 {
	return float64(len(e.jobChan))
}

// HandleObservation is the single entry point invoked by the transport for
// every delivered message. It never blocks: when the queue is full the
// observation is dropped with a warning rather than stalling the transport
// callback.
func (e *Engine) HandleObservation(topic string, payload []byte) {
	e.stats.IncReceived()
	e.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
	})

	select {
	case e.jobChan <- rule.Observation{Topic: topic, Payload: payload}:
	default:
		e.logger.Warn("processing queue full, dropping observation",
			"topic", topic)
		e.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("dropped")
		})
	}
}

// Close drains the worker pool
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.jobChan)
	})
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()

	for obs := range e.jobChan {
		e.process(obs)
	}
}

func (e *Engine) process(obs rule.Observation) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Diagnostic only; a failure here must not affect evaluation
	if err := e.store.RecordSeenTopic(ctx, obs.Topic, e.now().Unix()); err != nil {
		e.logger.Debug("failed to record seen topic",
			"topic", obs.Topic,
			"error", err)
	}

	value, err := rule.ParsePayload(obs.Payload)
	if err != nil {
		e.logger.Warn("dropping observation with non-numeric payload",
			"topic", obs.Topic,
			"payloadSize", len(obs.Payload))
		e.stats.IncParseErrors()
		e.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncParseErrors()
			m.IncMessagesTotal("dropped")
		})
		return
	}

	snap := e.snap.Load()
	triggered := rule.Evaluate(obs.Topic, value, snap.rules)
	if len(triggered) == 0 {
		e.logger.Debug("observation matched no rules",
			"topic", obs.Topic,
			"value", value)
		e.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("processed")
		})
		return
	}

	e.stats.IncMatched()
	e.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncRuleMatches()
	})

	// Each triggered rule is rate-limited and dispatched independently
	for _, r := range triggered {
		e.dispatch(ctx, snap, r, obs.Topic, value)
	}

	e.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("processed")
	})
}

func (e *Engine) dispatch(ctx context.Context, snap *snapshot, r *rule.Rule, topic string, value float64) {
	admitted, err := e.limiter.Admit(ctx, r, e.now())
	if err != nil {
		e.logger.Error("rate limit check failed, skipping dispatch",
			"ruleId", r.ID,
			"topic", topic,
			"error", err)
		e.stats.IncStorageErrors()
		return
	}

	if !admitted {
		e.logger.Info("dispatch suppressed by rate limit",
			"ruleId", r.ID,
			"topic", topic,
			"maxDispatches", r.MaxDispatches,
			"periodSeconds", r.PeriodSeconds)
		e.stats.IncSuppressed()
		e.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncSuppressed()
		})
		return
	}

	message := e.renderMessage(snap, r, topic, value)

	// Admit already recorded the dispatch; a delivery failure does not
	// refund the window slot.
	if err := e.notifier.Send(ctx, message); err != nil {
		e.logger.Error("notification delivery failed",
			"ruleId", r.ID,
			"topic", topic,
			"error", err)
		e.stats.IncDeliveryErrors()
		e.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncNotificationsTotal("error")
		})
		return
	}

	e.logger.Info("notification dispatched",
		"ruleId", r.ID,
		"topic", topic,
		"value", value)
	e.stats.IncDispatched()
	e.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncNotificationsTotal("success")
	})
}

// renderMessage substitutes the rule template and prepends the originating
// topic, using the operator-assigned friendly name when one exists.
func (e *Engine) renderMessage(snap *snapshot, r *rule.Rule, topic string, value float64) string {
	source := topic
	if name, ok := snap.names[topic]; ok && name != "" {
		source = name
	}
	return fmt.Sprintf("%s: %s", source, rule.Render(r, value))
}

func (e *Engine) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}

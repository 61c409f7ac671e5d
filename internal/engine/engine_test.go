package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-alert-bridge/internal/limiter"
	"mqtt-alert-bridge/internal/logger"
	"mqtt-alert-bridge/internal/rule"
	"mqtt-alert-bridge/internal/stats"
)

// fakeStore backs both the engine reads and the limiter's dispatch log
type fakeStore struct {
	mu       sync.Mutex
	rules    []rule.Rule
	names    map[string]string
	seen     map[string]int64
	logs     map[int64][]int64
	listErr  error
	namesErr error
}

func newFakeStore(rules ...rule.Rule) *fakeStore {
	return &fakeStore{
		rules: rules,
		names: map[string]string{},
		seen:  map[string]int64{},
		logs:  map[int64][]int64{},
	}
}

func (s *fakeStore) ListActiveRules(ctx context.Context) ([]rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]rule.Rule(nil), s.rules...), nil
}

func (s *fakeStore) FriendlyNames(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.namesErr != nil {
		return nil, s.namesErr
	}
	names := make(map[string]string, len(s.names))
	for k, v := range s.names {
		names[k] = v
	}
	return names, nil
}

func (s *fakeStore) RecordSeenTopic(ctx context.Context, topic string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[topic] = ts
	return nil
}

func (s *fakeStore) CountDispatchesSince(ctx context.Context, ruleID int64, since int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ts := range s.logs[ruleID] {
		if ts >= since {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) AppendDispatchLog(ctx context.Context, ruleID int64, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[ruleID] = append(s.logs[ruleID], ts)
	return nil
}

func (s *fakeStore) logCount(ruleID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[ruleID])
}

// chanNotifier records every Send on a channel so tests can wait for
// asynchronous worker completion without sleeping
type chanNotifier struct {
	messages chan string
	err      error
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{messages: make(chan string, 64)}
}

func (n *chanNotifier) Send(ctx context.Context, message string) error {
	n.messages <- message
	return n.err
}

func (n *chanNotifier) waitForMessage(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-n.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return ""
	}
}

func (n *chanNotifier) assertNoMessage(t *testing.T) {
	t.Helper()
	select {
	case msg := <-n.messages:
		t.Fatalf("unexpected notification: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func testRule(id int64, topic string) rule.Rule {
	return rule.Rule{
		ID:            id,
		Topic:         topic,
		Threshold:     30.0,
		Direction:     rule.DirectionAbove,
		Message:       "Temperature {value} exceeds {threshold}",
		MaxDispatches: 5,
		PeriodSeconds: 600,
		Enabled:       true,
	}
}

func newTestEngine(t *testing.T, store *fakeStore, notifier *chanNotifier, workers int) *Engine {
	t.Helper()
	e := New(
		Config{Workers: workers, QueueSize: 100},
		store,
		limiter.New(store),
		notifier,
		logger.NewNop(),
		nil,
		stats.NewStatsCollector(),
	)
	t.Cleanup(e.Close)
	require.NoError(t, e.RefreshRules(context.Background()))
	return e
}

func TestHandleObservationDispatch(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("35.2"))

	msg := notifier.waitForMessage(t)
	assert.Equal(t, "home/temp: Temperature 35.2 exceeds 30.0", msg)
	assert.Equal(t, 1, store.logCount(1))
}

func TestHandleObservationNotTriggered(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	// Equal to the threshold never triggers
	e.HandleObservation("home/temp", []byte("30.0"))
	e.HandleObservation("home/temp", []byte("25"))

	notifier.assertNoMessage(t)
	assert.Equal(t, 0, store.logCount(1))
}

func TestHandleObservationMalformedPayload(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("not-a-number"))
	e.HandleObservation("home/temp", []byte(`{"value": 35.2}`))

	notifier.assertNoMessage(t)

	got := e.stats.GetStats()
	assert.Equal(t, uint64(2), got["parse_errors"])
}

func TestHandleObservationUnmatchedTopic(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	// Subtopics of the rule topic do not match
	e.HandleObservation("home/temp/upstairs", []byte("99"))

	notifier.assertNoMessage(t)
}

func TestHandleObservationSuppressed(t *testing.T) {
	r := testRule(1, "home/temp")
	r.MaxDispatches = 1
	store := newFakeStore(r)
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("35.2"))
	notifier.waitForMessage(t)

	e.HandleObservation("home/temp", []byte("36.0"))
	notifier.assertNoMessage(t)

	got := e.stats.GetStats()
	assert.Equal(t, uint64(1), got["dispatched"])
	assert.Equal(t, uint64(1), got["suppressed"])
	assert.Equal(t, 1, store.logCount(1))
}

func TestDeliveryFailureKeepsBudgetConsumed(t *testing.T) {
	r := testRule(1, "home/temp")
	r.MaxDispatches = 1
	store := newFakeStore(r)
	notifier := newChanNotifier()
	notifier.err = errors.New("gateway timeout")
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("35.2"))
	notifier.waitForMessage(t)

	// The failed delivery consumed the only slot in the window
	e.HandleObservation("home/temp", []byte("36.0"))
	notifier.assertNoMessage(t)

	got := e.stats.GetStats()
	assert.Equal(t, uint64(1), got["delivery_errors"])
	assert.Equal(t, uint64(1), got["suppressed"])
}

func TestConcurrentObservationsSingleSlot(t *testing.T) {
	r := testRule(1, "home/temp")
	r.MaxDispatches = 1
	store := newFakeStore(r)
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 8)

	const total = 20
	for i := 0; i < total; i++ {
		e.HandleObservation("home/temp", []byte("35.2"))
	}

	notifier.waitForMessage(t)
	notifier.assertNoMessage(t)

	// Drain the pool so all suppressions are counted before asserting
	e.Close()

	got := e.stats.GetStats()
	assert.Equal(t, uint64(1), got["dispatched"])
	assert.Equal(t, uint64(total-1), got["suppressed"])
	assert.Equal(t, 1, store.logCount(1))
}

func TestFriendlyNamePrefix(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	store.names["home/temp"] = "Living Room"
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("35.2"))

	msg := notifier.waitForMessage(t)
	assert.Equal(t, "Living Room: Temperature 35.2 exceeds 30.0", msg)
}

func TestMultipleRulesSameTopic(t *testing.T) {
	warn := testRule(1, "home/temp")
	warn.Message = "warning at {value}"
	crit := testRule(2, "home/temp")
	crit.Threshold = 40.0
	crit.Message = "critical at {value}"
	store := newFakeStore(warn, crit)
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	e.HandleObservation("home/temp", []byte("45"))

	first := notifier.waitForMessage(t)
	second := notifier.waitForMessage(t)
	assert.Equal(t, "home/temp: warning at 45.0", first)
	assert.Equal(t, "home/temp: critical at 45.0", second)
	assert.Equal(t, 1, store.logCount(1))
	assert.Equal(t, 1, store.logCount(2))
}

func TestRefreshRulesSwapsSnapshot(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	require.Len(t, e.Rules(), 1)

	store.mu.Lock()
	store.rules = append(store.rules, testRule(2, "garage/door"))
	store.mu.Unlock()

	require.NoError(t, e.RefreshRules(context.Background()))
	assert.Len(t, e.Rules(), 2)

	e.HandleObservation("garage/door", []byte("35.2"))
	notifier.waitForMessage(t)
}

func TestRefreshRulesError(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	store.mu.Lock()
	store.listErr = errors.New("database locked")
	store.mu.Unlock()

	err := e.RefreshRules(context.Background())
	assert.Error(t, err)

	// The previous snapshot stays in effect
	assert.Len(t, e.Rules(), 1)
}

func TestTopics(t *testing.T) {
	store := newFakeStore(
		testRule(1, "home/temp"),
		testRule(2, "home/temp"),
		testRule(3, "garage/door"),
	)
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	assert.Equal(t, []string{"home/temp", "garage/door"}, e.Topics())
}

func TestSeenTopicsRecorded(t *testing.T) {
	store := newFakeStore(testRule(1, "home/temp"))
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 1)

	// Topics with no matching rule are still recorded for discovery
	e.HandleObservation("attic/humidity", []byte("61"))
	e.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	_, ok := store.seen["attic/humidity"]
	assert.True(t, ok)
}

func TestParallelTopicsIndependentBudgets(t *testing.T) {
	a := testRule(1, "home/temp")
	a.MaxDispatches = 1
	b := testRule(2, "garage/temp")
	b.MaxDispatches = 1
	store := newFakeStore(a, b)
	notifier := newChanNotifier()
	e := newTestEngine(t, store, notifier, 4)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topic := "home/temp"
			if i%2 == 0 {
				topic = "garage/temp"
			}
			e.HandleObservation(topic, []byte(fmt.Sprintf("%d", 31+i)))
		}(i)
	}
	wg.Wait()
	e.Close()

	assert.Equal(t, 1, store.logCount(1))
	assert.Equal(t, 1, store.logCount(2))
}

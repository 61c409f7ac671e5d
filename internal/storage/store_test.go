package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-alert-bridge/internal/rule"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRule() rule.Rule {
	return rule.Rule{
		Topic:         "sensors/temp",
		Threshold:     30.0,
		Direction:     rule.DirectionAbove,
		Message:       "Temperature {value} exceeds {threshold}",
		MaxDispatches: 1,
		PeriodSeconds: 3600,
		Enabled:       true,
	}
}

func TestRuleCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRule()
	require.NoError(t, store.CreateRule(ctx, &r))
	assert.NotZero(t, r.ID)

	got, err := store.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, *got)

	r.Threshold = 35.0
	r.Direction = rule.DirectionBelow
	require.NoError(t, store.UpdateRule(ctx, &r))

	got, err = store.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 35.0, got.Threshold)
	assert.Equal(t, rule.DirectionBelow, got.Direction)

	require.NoError(t, store.DeleteRule(ctx, r.ID))
	_, err = store.GetRule(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleCRUDNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRule(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	missing := testRule()
	missing.ID = 99
	assert.ErrorIs(t, store.UpdateRule(ctx, &missing), ErrNotFound)
	assert.ErrorIs(t, store.DeleteRule(ctx, 99), ErrNotFound)
}

func TestCreateRuleValidates(t *testing.T) {
	store := newTestStore(t)

	bad := testRule()
	bad.Direction = "sideways"

	var verr *rule.RuleValidationError
	assert.ErrorAs(t, store.CreateRule(context.Background(), &bad), &verr)
}

func TestListActiveRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testRule()
	require.NoError(t, store.CreateRule(ctx, &first))

	second := testRule()
	second.Topic = "sensors/humidity"
	require.NoError(t, store.CreateRule(ctx, &second))

	disabled := testRule()
	disabled.Enabled = false
	require.NoError(t, store.CreateRule(ctx, &disabled))

	active, err := store.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	// Ordered by id for deterministic evaluation
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)

	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDispatchLogCounting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRule()
	require.NoError(t, store.CreateRule(ctx, &r))

	base := int64(1_700_000_000)
	require.NoError(t, store.AppendDispatchLog(ctx, r.ID, base))
	require.NoError(t, store.AppendDispatchLog(ctx, r.ID, base+10))
	require.NoError(t, store.AppendDispatchLog(ctx, r.ID, base+100))

	// since is inclusive
	count, err := store.CountDispatchesSince(ctx, r.ID, base+10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CountDispatchesSince(ctx, r.ID, base+101)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Other rules are not counted
	count, err = store.CountDispatchesSince(ctx, r.ID+1, base)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListDispatchHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRule()
	require.NoError(t, store.CreateRule(ctx, &r))
	require.NoError(t, store.AppendDispatchLog(ctx, r.ID, 100))
	require.NoError(t, store.AppendDispatchLog(ctx, r.ID, 200))

	entries, err := store.ListDispatchHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first, joined with the rule
	assert.Equal(t, int64(200), entries[0].Timestamp)
	assert.Equal(t, "sensors/temp", entries[0].Topic)

	// Rows survive rule deletion
	require.NoError(t, store.DeleteRule(ctx, r.ID))
	entries, err = store.ListDispatchHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].Topic)
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, SettingMQTTBroker)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, SettingMQTTBroker, "tcp://localhost:1883"))
	require.NoError(t, store.SetSetting(ctx, SettingPushoverUserKey, "ukey"))

	// Upsert overwrites
	require.NoError(t, store.SetSetting(ctx, SettingMQTTBroker, "tcp://other:1883"))

	value, err := store.GetSetting(ctx, SettingMQTTBroker)
	require.NoError(t, err)
	assert.Equal(t, "tcp://other:1883", value)

	all, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "ukey", all[SettingPushoverUserKey])
}

func TestSeenTopicsAndFriendlyNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSeenTopic(ctx, "sensors/temp", 100))
	require.NoError(t, store.RecordSeenTopic(ctx, "sensors/temp", 200))
	require.NoError(t, store.RecordSeenTopic(ctx, "sensors/humidity", 150))

	require.NoError(t, store.SetFriendlyName(ctx, "sensors/temp", "Greenhouse"))

	topics, err := store.ListSeenTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "sensors/humidity", topics[0].Topic)
	assert.Equal(t, "", topics[0].FriendlyName)
	assert.Equal(t, "sensors/temp", topics[1].Topic)
	assert.Equal(t, int64(200), topics[1].LastSeen)
	assert.Equal(t, "Greenhouse", topics[1].FriendlyName)

	names, err := store.FriendlyNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sensors/temp": "Greenhouse"}, names)

	// Empty name removes the alias
	require.NoError(t, store.SetFriendlyName(ctx, "sensors/temp", ""))
	names, err = store.FriendlyNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

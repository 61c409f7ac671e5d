package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"mqtt-alert-bridge/internal/rule"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Well-known settings keys managed through the admin panel. Values stored
// here take precedence over the bootstrap config file.
const (
	SettingMQTTBroker       = "mqtt_broker"
	SettingMQTTUsername     = "mqtt_username"
	SettingMQTTPassword     = "mqtt_password"
	SettingNotifierType     = "notifier_type"
	SettingPushoverUserKey  = "pushover_user_key"
	SettingPushoverAPIToken = "pushover_api_token"
	SettingWebhookURL       = "webhook_url"
)

// SettingsKeys lists the keys shown on the admin settings form, in display order.
var SettingsKeys = []string{
	SettingMQTTBroker,
	SettingMQTTUsername,
	SettingMQTTPassword,
	SettingNotifierType,
	SettingPushoverUserKey,
	SettingPushoverAPIToken,
	SettingWebhookURL,
}

// Store is the SQLite-backed persistence layer: connection settings, alert
// rules, the dispatch log, and topic diagnostics all live in one database
// file so the bridge and the admin panel share a single source of truth.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// WAL keeps the admin panel responsive while the engine is writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		threshold REAL NOT NULL,
		direction TEXT NOT NULL DEFAULT 'above',
		message TEXT NOT NULL,
		max_alerts INTEGER NOT NULL DEFAULT 1,
		period_seconds INTEGER NOT NULL DEFAULT 3600,
		enabled INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS alert_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY(alert_id) REFERENCES alerts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_alert_logs_alert_ts ON alert_logs(alert_id, timestamp);
	CREATE TABLE IF NOT EXISTS topic_names (
		topic TEXT PRIMARY KEY,
		friendly_name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS seen_topics (
		topic TEXT PRIMARY KEY,
		last_seen INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

const ruleColumns = "id, topic, threshold, direction, message, max_alerts, period_seconds, enabled"

func scanRule(row interface{ Scan(dest ...interface{}) error }) (rule.Rule, error) {
	var r rule.Rule
	var direction string
	var enabled int
	if err := row.Scan(&r.ID, &r.Topic, &r.Threshold, &direction, &r.Message, &r.MaxDispatches, &r.PeriodSeconds, &enabled); err != nil {
		return rule.Rule{}, err
	}

	d, err := rule.ParseDirection(direction)
	if err != nil {
		return rule.Rule{}, fmt.Errorf("rule %d: %w", r.ID, err)
	}
	r.Direction = d
	r.Enabled = enabled != 0
	return r, nil
}

// ListActiveRules returns all enabled rules ordered by id. The order is
// stable so evaluation results are reproducible.
func (s *Store) ListActiveRules(ctx context.Context) ([]rule.Rule, error) {
	return s.listRules(ctx, "WHERE enabled = 1")
}

// ListRules returns all rules, enabled or not, ordered by id
func (s *Store) ListRules(ctx context.Context) ([]rule.Rule, error) {
	return s.listRules(ctx, "")
}

func (s *Store) listRules(ctx context.Context, where string) ([]rule.Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts %s ORDER BY id", ruleColumns, where)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by id
func (s *Store) GetRule(ctx context.Context, id int64) (*rule.Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE id = ?", ruleColumns)
	r, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	return &r, nil
}

// CreateRule inserts a rule and assigns its id
func (s *Store) CreateRule(ctx context.Context, r *rule.Rule) error {
	if err := rule.Validate(r); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (topic, threshold, direction, message, max_alerts, period_seconds, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Topic, r.Threshold, string(r.Direction), r.Message, r.MaxDispatches, r.PeriodSeconds, boolToInt(r.Enabled))
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rule id: %w", err)
	}
	return nil
}

// UpdateRule rewrites an existing rule's definition
func (s *Store) UpdateRule(ctx context.Context, r *rule.Rule) error {
	if err := rule.Validate(r); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET topic = ?, threshold = ?, direction = ?, message = ?, max_alerts = ?, period_seconds = ?, enabled = ?
		 WHERE id = ?`,
		r.Topic, r.Threshold, string(r.Direction), r.Message, r.MaxDispatches, r.PeriodSeconds, boolToInt(r.Enabled), r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule. Its dispatch log rows are kept for history.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDispatchesSince counts dispatch log rows for a rule with
// timestamp >= since. The inclusive lower bound is part of the rate-limit
// window contract.
func (s *Store) CountDispatchesSince(ctx context.Context, ruleID int64, since int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_logs WHERE alert_id = ? AND timestamp >= ?",
		ruleID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return count, nil
}

// AppendDispatchLog records one dispatch at ts for a rule
func (s *Store) AppendDispatchLog(ctx context.Context, ruleID int64, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO alert_logs (alert_id, timestamp) VALUES (?, ?)",
		ruleID, ts)
	if err != nil {
		return fmt.Errorf("append dispatch log: %w", err)
	}
	return nil
}

// HistoryEntry is a dispatch log row joined with its rule for display.
// Topic and Message are empty when the rule has since been deleted.
type HistoryEntry struct {
	ID        int64
	RuleID    int64
	Timestamp int64
	Topic     string
	Message   string
}

// ListDispatchHistory returns the most recent dispatches, newest first
func (s *Store) ListDispatchHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.alert_id, l.timestamp, COALESCE(a.topic, ''), COALESCE(a.message, '')
		 FROM alert_logs l
		 LEFT JOIN alerts a ON a.id = l.alert_id
		 ORDER BY l.timestamp DESC, l.id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.RuleID, &e.Timestamp, &e.Topic, &e.Message); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSettings returns all stored settings
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// GetSetting returns one setting value, or ErrNotFound
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts one setting
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// SeenTopic is a diagnostic record of a topic the transport has delivered
type SeenTopic struct {
	Topic        string
	LastSeen     int64
	FriendlyName string
}

// RecordSeenTopic upserts the last-seen timestamp for a topic
func (s *Store) RecordSeenTopic(ctx context.Context, topic string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_topics (topic, last_seen) VALUES (?, ?)
		 ON CONFLICT(topic) DO UPDATE SET last_seen = excluded.last_seen`,
		topic, ts)
	if err != nil {
		return fmt.Errorf("record seen topic: %w", err)
	}
	return nil
}

// ListSeenTopics returns all recorded topics with any assigned friendly name
func (s *Store) ListSeenTopics(ctx context.Context) ([]SeenTopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT st.topic, st.last_seen, COALESCE(tn.friendly_name, '')
		 FROM seen_topics st
		 LEFT JOIN topic_names tn ON tn.topic = st.topic
		 ORDER BY st.topic`)
	if err != nil {
		return nil, fmt.Errorf("query seen topics: %w", err)
	}
	defer rows.Close()

	var topics []SeenTopic
	for rows.Next() {
		var t SeenTopic
		if err := rows.Scan(&t.Topic, &t.LastSeen, &t.FriendlyName); err != nil {
			return nil, fmt.Errorf("scan seen topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SetFriendlyName assigns a display alias to a topic. An empty name removes
// the alias.
func (s *Store) SetFriendlyName(ctx context.Context, topic, name string) error {
	if name == "" {
		_, err := s.db.ExecContext(ctx, "DELETE FROM topic_names WHERE topic = ?", topic)
		if err != nil {
			return fmt.Errorf("delete friendly name: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topic_names (topic, friendly_name) VALUES (?, ?)
		 ON CONFLICT(topic) DO UPDATE SET friendly_name = excluded.friendly_name`,
		topic, name)
	if err != nil {
		return fmt.Errorf("set friendly name: %w", err)
	}
	return nil
}

// FriendlyNames returns the topic display alias map
func (s *Store) FriendlyNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT topic, friendly_name FROM topic_names")
	if err != nil {
		return nil, fmt.Errorf("query friendly names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var topic, name string
		if err := rows.Scan(&topic, &name); err != nil {
			return nil, fmt.Errorf("scan friendly name: %w", err)
		}
		names[topic] = name
	}
	return names, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

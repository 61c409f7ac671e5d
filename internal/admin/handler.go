// Package admin serves the embedded management panel: connection settings,
// alert rules, dispatch history, and topic diagnostics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mqtt-alert-bridge/internal/broker"
	"mqtt-alert-bridge/internal/logger"
	"mqtt-alert-bridge/internal/rule"
	"mqtt-alert-bridge/internal/stats"
	"mqtt-alert-bridge/internal/storage"
)

// Handler serves the admin panel routes
type Handler struct {
	store       *storage.Store
	stats       *stats.StatsCollector
	logger      *logger.Logger
	refresh     func(context.Context) error
	brokerStats func() broker.BrokerStats
	timeout     time.Duration
}

// NewHandler creates an admin handler. refresh is invoked after every rule
// mutation so the engine snapshot and bus subscriptions track the store;
// brokerStats feeds transport counters into the stats endpoint (nil allowed).
func NewHandler(store *storage.Store, st *stats.StatsCollector, log *logger.Logger, refresh func(context.Context) error, brokerStats func() broker.BrokerStats) *Handler {
	if refresh == nil {
		refresh = func(context.Context) error { return nil }
	}
	return &Handler{
		store:       store,
		stats:       st,
		logger:      log,
		refresh:     refresh,
		brokerStats: brokerStats,
		timeout:     10 * time.Second,
	}
}

// Router builds the chi router for the admin panel
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/rules", http.StatusFound)
	})

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.handleRulesList)
		r.Post("/", h.handleRuleCreate)
		r.Get("/{id}/edit", h.handleRuleEditForm)
		r.Post("/{id}", h.handleRuleUpdate)
		r.Post("/{id}/delete", h.handleRuleDelete)
		r.Post("/{id}/enable", h.handleRuleEnable(true))
		r.Post("/{id}/disable", h.handleRuleEnable(false))
	})

	r.Get("/settings", h.handleSettingsForm)
	r.Post("/settings", h.handleSettingsSave)
	r.Get("/history", h.handleHistory)
	r.Get("/topics", h.handleTopics)
	r.Post("/topics/name", h.handleTopicName)
	r.Get("/stats", h.handleStats)

	return r
}

// ruleForm carries raw form values so invalid input can be redisplayed
type ruleForm struct {
	Topic         string
	Direction     string
	Threshold     string
	Message       string
	MaxDispatches string
	PeriodSeconds string
}

func readRuleForm(r *http.Request) ruleForm {
	return ruleForm{
		Topic:         r.PostFormValue("topic"),
		Direction:     r.PostFormValue("direction"),
		Threshold:     r.PostFormValue("threshold"),
		Message:       r.PostFormValue("message"),
		MaxDispatches: r.PostFormValue("max_dispatches"),
		PeriodSeconds: r.PostFormValue("period_seconds"),
	}
}

func formFromRule(r *rule.Rule) ruleForm {
	return ruleForm{
		Topic:         r.Topic,
		Direction:     string(r.Direction),
		Threshold:     strconv.FormatFloat(r.Threshold, 'f', -1, 64),
		Message:       r.Message,
		MaxDispatches: strconv.Itoa(r.MaxDispatches),
		PeriodSeconds: strconv.Itoa(r.PeriodSeconds),
	}
}

// toRule converts form values into a validated rule
func (f ruleForm) toRule() (*rule.Rule, error) {
	threshold, err := strconv.ParseFloat(f.Threshold, 64)
	if err != nil {
		return nil, fmt.Errorf("threshold must be a number")
	}

	maxDispatches := 1
	if f.MaxDispatches != "" {
		if maxDispatches, err = strconv.Atoi(f.MaxDispatches); err != nil {
			return nil, fmt.Errorf("max dispatches must be an integer")
		}
	}

	periodSeconds := 3600
	if f.PeriodSeconds != "" {
		if periodSeconds, err = strconv.Atoi(f.PeriodSeconds); err != nil {
			return nil, fmt.Errorf("period must be an integer")
		}
	}

	direction, err := rule.ParseDirection(f.Direction)
	if err != nil {
		return nil, err
	}

	r := &rule.Rule{
		Topic:         f.Topic,
		Threshold:     threshold,
		Direction:     direction,
		Message:       f.Message,
		MaxDispatches: maxDispatches,
		PeriodSeconds: periodSeconds,
		Enabled:       true,
	}
	if err := rule.Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

type rulesPageData struct {
	Error string
	Rules []rule.Rule
	Form  ruleForm
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	h.renderRulesList(w, r, "", ruleForm{Direction: "above"})
}

func (h *Handler) renderRulesList(w http.ResponseWriter, r *http.Request, errMsg string, form ruleForm) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		h.serverError(w, "failed to list rules", err)
		return
	}

	h.render(w, rulesPage, rulesPageData{Error: errMsg, Rules: rules, Form: form})
}

func (h *Handler) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	form := readRuleForm(r)
	newRule, err := form.toRule()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		h.renderRulesList(w, r, err.Error(), form)
		return
	}

	if err := h.store.CreateRule(r.Context(), newRule); err != nil {
		h.serverError(w, "failed to create rule", err)
		return
	}

	h.logger.Info("rule created via admin panel", "ruleId", newRule.ID, "topic", newRule.Topic)
	h.refreshEngine(r.Context())
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

type ruleEditPageData struct {
	Error string
	Rule  *rule.Rule
	Form  ruleForm
}

func (h *Handler) handleRuleEditForm(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ruleFromPath(w, r)
	if !ok {
		return
	}

	h.render(w, ruleEditPage, ruleEditPageData{Rule: existing, Form: formFromRule(existing)})
}

func (h *Handler) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ruleFromPath(w, r)
	if !ok {
		return
	}

	form := readRuleForm(r)
	updated, err := form.toRule()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		h.render(w, ruleEditPage, ruleEditPageData{Error: err.Error(), Rule: existing, Form: form})
		return
	}

	updated.ID = existing.ID
	updated.Enabled = existing.Enabled
	if err := h.store.UpdateRule(r.Context(), updated); err != nil {
		h.serverError(w, "failed to update rule", err)
		return
	}

	h.logger.Info("rule updated via admin panel", "ruleId", updated.ID)
	h.refreshEngine(r.Context())
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

func (h *Handler) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idFromPath(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "failed to delete rule", err)
		return
	}

	h.logger.Info("rule deleted via admin panel", "ruleId", id)
	h.refreshEngine(r.Context())
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

func (h *Handler) handleRuleEnable(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existing, ok := h.ruleFromPath(w, r)
		if !ok {
			return
		}

		existing.Enabled = enabled
		if err := h.store.UpdateRule(r.Context(), existing); err != nil {
			h.serverError(w, "failed to update rule", err)
			return
		}

		h.logger.Info("rule toggled via admin panel", "ruleId", existing.ID, "enabled", enabled)
		h.refreshEngine(r.Context())
		http.Redirect(w, r, "/rules", http.StatusSeeOther)
	}
}

type settingsPageData struct {
	Error    string
	Keys     []string
	Settings map[string]string
}

func (h *Handler) handleSettingsForm(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.serverError(w, "failed to load settings", err)
		return
	}

	h.render(w, settingsPage, settingsPageData{Keys: storage.SettingsKeys, Settings: settings})
}

func (h *Handler) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	for _, key := range storage.SettingsKeys {
		if !r.PostForm.Has(key) {
			continue
		}
		if err := h.store.SetSetting(r.Context(), key, r.PostFormValue(key)); err != nil {
			h.serverError(w, "failed to save setting", err)
			return
		}
	}

	h.logger.Info("settings saved via admin panel")
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

type historyRow struct {
	Time    string
	RuleID  int64
	Topic   string
	Message string
}

type historyPageData struct {
	Error   string
	Entries []historyRow
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListDispatchHistory(r.Context(), 100)
	if err != nil {
		h.serverError(w, "failed to load history", err)
		return
	}

	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			Time:    time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
			RuleID:  e.RuleID,
			Topic:   e.Topic,
			Message: e.Message,
		})
	}

	h.render(w, historyPage, historyPageData{Entries: rows})
}

type topicRow struct {
	Topic        string
	LastSeen     string
	FriendlyName string
}

type topicsPageData struct {
	Error  string
	Topics []topicRow
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListSeenTopics(r.Context())
	if err != nil {
		h.serverError(w, "failed to load topics", err)
		return
	}

	rows := make([]topicRow, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, topicRow{
			Topic:        t.Topic,
			LastSeen:     time.Unix(t.LastSeen, 0).UTC().Format(time.RFC3339),
			FriendlyName: t.FriendlyName,
		})
	}

	h.render(w, topicsPage, topicsPageData{Topics: rows})
}

func (h *Handler) handleTopicName(w http.ResponseWriter, r *http.Request) {
	topic := r.PostFormValue("topic")
	if topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	if err := h.store.SetFriendlyName(r.Context(), topic, r.PostFormValue("name")); err != nil {
		h.serverError(w, "failed to set friendly name", err)
		return
	}

	// Friendly names feed the notification prefix, so the snapshot must
	// pick up the change too
	h.refreshEngine(r.Context())
	http.Redirect(w, r, "/topics", http.StatusSeeOther)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot := h.stats.GetStats()
	if h.brokerStats != nil {
		bs := h.brokerStats()
		snapshot["broker_messages_received"] = bs.MessagesReceived
		snapshot["broker_errors"] = bs.Errors
		if !bs.LastReconnect.IsZero() {
			snapshot["broker_last_reconnect"] = bs.LastReconnect.Format(time.RFC3339)
		}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.serverError(w, "failed to encode stats", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (h *Handler) ruleFromPath(w http.ResponseWriter, r *http.Request) (*rule.Rule, bool) {
	id, ok := h.idFromPath(w, r)
	if !ok {
		return nil, false
	}

	existing, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return nil, false
		}
		h.serverError(w, "failed to load rule", err)
		return nil, false
	}
	return existing, true
}

func (h *Handler) idFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) refreshEngine(ctx context.Context) {
	if err := h.refresh(ctx); err != nil {
		h.logger.Error("failed to refresh rule snapshot", "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", "error", err)
	}
}

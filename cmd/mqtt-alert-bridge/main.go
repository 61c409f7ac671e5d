package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-alert-bridge/config"
	"mqtt-alert-bridge/internal/admin"
	"mqtt-alert-bridge/internal/broker"
	mqttbroker "mqtt-alert-bridge/internal/broker/mqtt"
	natsbroker "mqtt-alert-bridge/internal/broker/nats"
	"mqtt-alert-bridge/internal/engine"
	"mqtt-alert-bridge/internal/limiter"
	"mqtt-alert-bridge/internal/logger"
	"mqtt-alert-bridge/internal/metrics"
	"mqtt-alert-bridge/internal/notify"
	"mqtt-alert-bridge/internal/rule"
	"mqtt-alert-bridge/internal/stats"
	"mqtt-alert-bridge/internal/storage"
)

func main() {
	// Command line flags for config and optional rule import
	configPath := flag.String("config", "config/config.json", "path to config file")
	rulesPath := flag.String("import-rules", "", "path to a YAML rules file imported into the store at startup")

	// Optional override flags
	workersOverride := flag.Int("workers", 0, "override number of worker threads (0 = use config)")
	queueSizeOverride := flag.Int("queue-size", 0, "override size of processing queue (0 = use config)")
	adminAddrOverride := flag.String("admin-addr", "", "override admin server address (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Apply any command line overrides
	cfg.ApplyOverrides(
		*workersOverride,
		*queueSizeOverride,
		*adminAddrOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
	)

	// Initialize logger
	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	// Open the store
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open store", "error", err, "path", cfg.Storage.Path)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Import rules from a YAML file, if requested
	if *rulesPath != "" {
		if err := importRules(ctx, store, logger, *rulesPath); err != nil {
			logger.Fatal("failed to import rules", "error", err, "path", *rulesPath)
		}
	}

	// Settings stored through the admin panel take precedence over the
	// bootstrap values in the config file
	if err := applyStoredSettings(ctx, store, cfg); err != nil {
		logger.Fatal("failed to load stored settings", "error", err)
	}

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsCollector *metrics.MetricsCollector
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector = metrics.NewMetricsCollector(metricsService, updateInterval)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Build the notifier from resolved settings
	notifier, err := buildNotifier(cfg)
	if err != nil {
		logger.Fatal("failed to create notifier", "error", err)
	}

	statsCollector := stats.NewStatsCollector()

	// Engine with worker pool
	eng := engine.New(
		engine.Config{
			Workers:   cfg.Processing.Workers,
			QueueSize: cfg.Processing.QueueSize,
		},
		store,
		limiter.New(store),
		notifier,
		logger,
		metricsService,
		statsCollector,
	)
	defer eng.Close()

	if err := eng.RefreshRules(ctx); err != nil {
		logger.Fatal("failed to load rules", "error", err)
	}

	if metricsCollector != nil {
		metricsCollector.SetQueueDepthFunc(eng.QueueDepth)
		metricsCollector.Start()
		defer metricsCollector.Stop()
	}

	// Connect the transport
	var bridgeBroker broker.Broker
	switch cfg.Broker.Type {
	case "nats":
		bridgeBroker, err = natsbroker.NewBroker(cfg, logger, eng, metricsService)
	default:
		bridgeBroker, err = mqttbroker.NewBroker(cfg, logger, eng, metricsService)
	}
	if err != nil {
		logger.Fatal("failed to create broker", "error", err)
	}

	if err := bridgeBroker.Start(ctx); err != nil {
		logger.Fatal("failed to start broker", "error", err)
	}

	// Admin panel, if enabled. Rule mutations refresh the engine snapshot
	// and realign bus subscriptions.
	var adminServer *http.Server
	if cfg.Admin.Enabled {
		refresh := func(ctx context.Context) error {
			if err := eng.RefreshRules(ctx); err != nil {
				return err
			}
			return bridgeBroker.Resubscribe()
		}

		handler := admin.NewHandler(store, statsCollector, logger, refresh, bridgeBroker.GetStats)
		adminServer = &http.Server{
			Addr:    cfg.Admin.Address,
			Handler: handler.Router(),
		}

		go func() {
			logger.Info("starting admin server", "address", cfg.Admin.Address)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin server error", "error", err)
			}
		}()
	}

	logger.Info("mqtt-alert-bridge started",
		"broker", cfg.Broker.Type,
		"notifier", cfg.Notifier.Type,
		"workers", cfg.Processing.Workers,
		"queueSize", cfg.Processing.QueueSize,
		"rulesCount", len(eng.Rules()),
		"adminEnabled", cfg.Admin.Enabled,
		"metricsEnabled", cfg.Metrics.Enabled)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading rules")
			if err := eng.RefreshRules(ctx); err != nil {
				logger.Error("failed to reload rules", "error", err)
			} else if err := bridgeBroker.Resubscribe(); err != nil {
				logger.Error("failed to resubscribe", "error", err)
			}
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if adminServer != nil {
				if err := adminServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown admin server", "error", err)
				}
			}
			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			cancel()
			bridgeBroker.Close()
			return
		}
	}
}

// importRules loads a YAML rules file into the store. Duplicate topics are
// allowed; import is additive.
func importRules(ctx context.Context, store *storage.Store, log *logger.Logger, path string) error {
	loader := rule.NewRulesLoader(log)
	rules, err := loader.LoadFromFile(path)
	if err != nil {
		return err
	}

	for i := range rules {
		if err := store.CreateRule(ctx, &rules[i]); err != nil {
			return err
		}
	}

	log.Info("imported rules", "count", len(rules), "path", path)
	return nil
}

// applyStoredSettings overlays admin-managed settings onto the config
func applyStoredSettings(ctx context.Context, store *storage.Store, cfg *config.Config) error {
	settings, err := store.GetSettings(ctx)
	if err != nil {
		return err
	}

	if v := settings[storage.SettingMQTTBroker]; v != "" {
		cfg.MQTT.Broker = v
	}
	if v := settings[storage.SettingMQTTUsername]; v != "" {
		cfg.MQTT.Username = v
	}
	if v := settings[storage.SettingMQTTPassword]; v != "" {
		cfg.MQTT.Password = v
	}
	if v := settings[storage.SettingNotifierType]; v != "" {
		cfg.Notifier.Type = v
	}
	if v := settings[storage.SettingPushoverUserKey]; v != "" {
		cfg.Notifier.UserKey = v
	}
	if v := settings[storage.SettingPushoverAPIToken]; v != "" {
		cfg.Notifier.APIToken = v
	}
	if v := settings[storage.SettingWebhookURL]; v != "" {
		cfg.Notifier.WebhookURL = v
	}
	return nil
}

// buildNotifier constructs the notification client selected by config
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	timeout, err := time.ParseDuration(cfg.Notifier.Timeout)
	if err != nil {
		return nil, err
	}

	switch cfg.Notifier.Type {
	case "webhook":
		return notify.NewWebhook(cfg.Notifier.WebhookURL, timeout), nil
	default:
		return notify.NewPushover("", cfg.Notifier.APIToken, cfg.Notifier.UserKey, timeout), nil
	}
}

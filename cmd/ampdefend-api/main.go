package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ampdefend/ampdefend/internal/adapter/feed"
	"github.com/ampdefend/ampdefend/internal/adapter/handler"
	"github.com/ampdefend/ampdefend/internal/adapter/notifier"
	"github.com/ampdefend/ampdefend/internal/adapter/repository"
	"github.com/ampdefend/ampdefend/internal/config"
	"github.com/ampdefend/ampdefend/internal/core/ports"
	"github.com/ampdefend/ampdefend/internal/core/service"
	"github.com/ampdefend/ampdefend/internal/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("Command execution failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ampdefend-api",
		Short: "Honeypot alert pipeline and dashboard API",
		Long: `Subscribes to a live honeypot threat feed, forwards high and critical
threats to an automation webhook exactly once, and serves the dashboard
REST and WebSocket API.`,

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	// Setup Viper for automatic env binding
	viper.SetEnvPrefix("AMPDEFEND")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	flags := cmd.Flags()
	flags.String("feed-database-url", "", "Realtime database base URL for the threat feed")
	flags.String("feed-collection", "alerts", "Collection path to stream threat records from")
	flags.String("webhook-url", notifier.DefaultEndpoint, "Automation webhook endpoint for new threat notifications")
	flags.Bool("notify-initial-snapshot", true, "Forward the threats already present at startup")
	flags.String("listen-address", ":8080", "Address to listen on for the API server")
	flags.Int("active-honeypots", 12, "Number of deployed honeypot sensors reported in metrics")
	flags.String("database-url", "", "Postgres URL for the delivery audit log (optional)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper
	if err := viper.BindPFlag("feed.database_url", flags.Lookup("feed-database-url")); err != nil {
		panic(fmt.Sprintf("failed to bind feed-database-url flag: %v", err))
	}
	if err := viper.BindPFlag("feed.collection", flags.Lookup("feed-collection")); err != nil {
		panic(fmt.Sprintf("failed to bind feed-collection flag: %v", err))
	}
	if err := viper.BindPFlag("webhook.url", flags.Lookup("webhook-url")); err != nil {
		panic(fmt.Sprintf("failed to bind webhook-url flag: %v", err))
	}
	if err := viper.BindPFlag("webhook.notify_initial_snapshot", flags.Lookup("notify-initial-snapshot")); err != nil {
		panic(fmt.Sprintf("failed to bind notify-initial-snapshot flag: %v", err))
	}
	if err := viper.BindPFlag("server.listen_address", flags.Lookup("listen-address")); err != nil {
		panic(fmt.Sprintf("failed to bind listen-address flag: %v", err))
	}
	if err := viper.BindPFlag("metrics.active_honeypots", flags.Lookup("active-honeypots")); err != nil {
		panic(fmt.Sprintf("failed to bind active-honeypots flag: %v", err))
	}
	if err := viper.BindPFlag("database_url", flags.Lookup("database-url")); err != nil {
		panic(fmt.Sprintf("failed to bind database-url flag: %v", err))
	}
	if err := viper.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		panic(fmt.Sprintf("failed to bind log-level flag: %v", err))
	}

	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ampdefend-api %s\n", version)
			fmt.Printf("commit: %s\n", commit)
			fmt.Printf("built: %s\n", date)
		},
	}
}

func runServer() error {
	// Local .env for development; missing file is fine
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	// Legacy plain env names kept for existing deployments
	if cfg.Feed.DatabaseURL == "" {
		cfg.Feed.DatabaseURL = os.Getenv("FIREBASE_DATABASE_URL")
	}
	if v := os.Getenv("N8N_WEBHOOK_URL"); v != "" && !viper.IsSet("webhook.url") {
		cfg.Webhook.URL = v
	}
	if cfg.Database == "" {
		cfg.Database = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	log := logrus.New()
	log.SetLevel(cfg.GetLogLevel())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init()
	log.Info("✅ Prometheus metrics initialized")

	// Delivery audit log (optional - only if a database is configured)
	var delivery ports.DeliveryLog = repository.NewNoopDeliveryLog()
	if cfg.Database != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbPool.Close()

		deliveryLog := repository.NewPostgresDeliveryLog(dbPool)
		if err := deliveryLog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare notification log schema: %w", err)
		}
		delivery = deliveryLog
		log.Info("✅ Delivery audit log enabled")
	} else {
		log.Info("⚠️  Delivery audit log disabled (no database_url)")
	}

	webhook := notifier.NewWebhookNotifier(cfg.Webhook.URL, log)
	log.WithField("endpoint", webhook.Endpoint()).Info("✅ Webhook notifier configured")

	pipeline := service.NewPipeline(service.Config{
		NotifyInitialSnapshot: cfg.Webhook.NotifyInitialSnapshot,
		ActiveHoneypots:       cfg.Metrics.ActiveHoneypots,
		WebhookEndpoint:       webhook.Endpoint(),
	}, webhook, delivery, service.NewNotifiedSet(), log)

	// WebSocket push to dashboard clients
	hub := handler.NewHub(log)
	go hub.Run(ctx)
	pipeline.SetOnChange(func(event string) {
		hub.Broadcast(event, map[string]interface{}{
			"unreadAlerts": pipeline.UnreadCount(),
			"metrics":      pipeline.Metrics(),
		})
	})

	// Live threat feed
	threatFeed := feed.NewFirebaseFeed(cfg.Feed.DatabaseURL, cfg.Feed.Collection, log)
	sub, err := threatFeed.Subscribe(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to subscribe to threat feed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"database":   cfg.Feed.DatabaseURL,
		"collection": cfg.Feed.Collection,
	}).Info("✅ Threat feed subscription started")

	restHandler := handler.NewRestHandler(pipeline, webhook, delivery, hub, log)
	router := restHandler.Routes()
	router.Use(loggingMiddleware(log))

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("🚀 AMPDefend API listening on %s", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	sub.Close()
	pipeline.Drain()

	log.Info("✅ Server stopped gracefully")
	return nil
}

func loggingMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("request handled")
		})
	}
}

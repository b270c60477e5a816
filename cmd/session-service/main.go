package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/joho/godotenv"
	"github.com/voltgate/ev-session-service/internal/app/background"
	"github.com/voltgate/ev-session-service/internal/config"
	deliveryhttp "github.com/voltgate/ev-session-service/internal/delivery/http"
	"github.com/voltgate/ev-session-service/internal/infrastructure/bus"
	"github.com/voltgate/ev-session-service/internal/infrastructure/kafka"
	"github.com/voltgate/ev-session-service/internal/infrastructure/logger"
	"github.com/voltgate/ev-session-service/internal/infrastructure/metrics"
	"github.com/voltgate/ev-session-service/internal/infrastructure/migrate"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/repository"
	"github.com/voltgate/ev-session-service/internal/infrastructure/square"
	adminuc "github.com/voltgate/ev-session-service/internal/usecase/admin"
	sessionuc "github.com/voltgate/ev-session-service/internal/usecase/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}
	// Reading config
	cfg := config.MustLoad()
	logger.Setup(cfg.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init database
	db := postgres.MustInitDB(cfg)
	if cfg.SessionDB.MigrationsPath != "" {
		if err := migrate.RunMigrations(db, cfg.SessionDB.MigrationsPath); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	sessionRepo := repository.NewDefaultSessionRepository(db)
	auditLog := repository.NewDefaultAuditLog(db)

	// Lifecycle event feed
	eventPublisher := kafka.NewSessionEventPublisher(
		fmt.Sprintf("%s:%s", cfg.KafkaFeed.Host, cfg.KafkaFeed.Port),
		cfg.KafkaFeed.Topic,
	)
	defer eventPublisher.Close()

	// Charger bus
	topics := sessionuc.NewTopics(cfg.Charger.HomeID, cfg.Charger.ChargerID)
	queues := bus.NewTopicQueues(topics.Subscribed()...)
	mqttClient := bus.NewMqttClient(cfg.MqttBroker, queues)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to mqtt broker: %v", token.Error())
	}
	defer mqttClient.Disconnect(250)

	mqttPublisher := bus.NewMqttPublisher(mqttClient)
	correlator := bus.NewCorrelator(mqttPublisher, queues, cfg.Finalize.ResponseTimeout)

	// Payment gateway
	gateway := square.NewClient(cfg.Square)
	if cfg.Square.LocationID == "" {
		locationCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		locationID, err := gateway.FetchFirstLocationID(locationCtx)
		cancel()
		if err != nil {
			log.Fatalf("square location_id not configured and auto-discovery failed: %v", err)
		}
		gateway.SetLocationID(locationID)
		slog.Info("square location discovered", "location_id", locationID)
	}

	sessionMetrics := metrics.NewSessionMetrics()

	tokenGen, err := nanoid.Standard(15)
	if err != nil {
		log.Fatalf("failed to init token generator: %v", err)
	}

	sessionUC := sessionuc.NewDefaultSessionUsecase(
		sessionRepo,
		gateway,
		correlator,
		queues,
		eventPublisher,
		sessionMetrics,
		sessionuc.NewPendingTokens(),
		topics,
		cfg.Charger.HomeID,
		cfg.Charger.ChargerID,
		cfg.Square.ChargeCents,
		cfg.Square.Environment(),
		cfg.Finalize.MaxRetries,
		cfg.Finalize.RetryDelay,
		tokenGen,
	)
	adminUC := adminuc.NewDefaultAdminUsecase(sessionRepo, auditLog, gateway, eventPublisher, sessionMetrics)

	tasks := background.NewBackgroundTasks(sessionUC)
	tasks.StartAll(ctx)

	router := deliveryhttp.NewRouter(
		cfg,
		deliveryhttp.NewSessionHandler(sessionUC),
		deliveryhttp.NewAdminHandler(adminUC),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		Handler: router,
	}

	go func() {
		slog.Info("http server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err.Error())
	}
}

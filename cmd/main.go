package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/api"
	"github.com/unipay/payment-core/internal/config"
	"github.com/unipay/payment-core/internal/notifier"
	"github.com/unipay/payment-core/internal/registry"
	"github.com/unipay/payment-core/internal/repository"
	"github.com/unipay/payment-core/internal/service"
	"github.com/unipay/payment-core/internal/telemetry"
)

func main() {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := telemetry.InitTelemetry("payment-core", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Core")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	providerRepo := repository.NewProviderRepository(db)
	if err := providerRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize provider schema", zap.Error(err))
	}
	txRepo := repository.NewTransactionRepository(db)
	if err := txRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize transaction schema", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Settlement notifiers: Kafka for fulfillment, NATS for fraud scoring
	kafkaNotifier := notifier.NewKafkaNotifier(strings.Split(cfg.KafkaBrokers, ","))
	defer kafkaNotifier.Close()
	settled := notifier.NewMulti(kafkaNotifier, notifier.NewFraudHook(nc))

	// Provider registry and services
	reg := registry.New(providerRepo, redisClient)
	gatewayTimeout := time.Duration(cfg.GatewayTimeout) * time.Second

	orchestrator, err := service.NewOrchestrator(txRepo, reg, redisClient, gatewayTimeout)
	if err != nil {
		telemetry.Logger.Fatal("Failed to build orchestrator", zap.Error(err))
	}
	webhookProcessor := service.NewWebhookProcessor(txRepo, reg, settled)
	refundManager := service.NewRefundManager(txRepo, reg, gatewayTimeout)

	r := api.NewRouter(orchestrator, webhookProcessor, refundManager)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment Core starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}

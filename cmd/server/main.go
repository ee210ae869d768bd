package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"workshop-service/config"
	"workshop-service/internal/api"
	"workshop-service/internal/broker"
	"workshop-service/internal/redisclient"
	"workshop-service/internal/service"
	"workshop-service/internal/store"
	"workshop-service/internal/util"
	"workshop-service/internal/worker"
	"workshop-service/migrations"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting workshop service")

	tp, err := util.InitTracer("workshop-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	var st store.Store
	switch cfg.Database.Backend {
	case "memory":
		st = store.NewMemStore()
		log.Println("Using in-memory store")
	default:
		sqlStore, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer sqlStore.Close()

		if err := runMigrations(sqlStore); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		st = sqlStore
		log.Println("Database connected and migrated")
	}

	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	var eventPublisher *broker.EventPublisher
	var historyWorker *worker.HistoryWorker
	var stockAlertWorker *worker.StockAlertWorker

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer)
		log.Println("Kafka producer initialized")

		historyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.HistoryGroup)
		historyWorker = worker.NewHistoryWorker(historyConsumer, st)
		go func() {
			if err := historyWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("History worker error: %v", err)
			}
		}()

		alertConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.AlertGroup)
		stockAlertWorker = worker.NewStockAlertWorker(alertConsumer, redisClient)
		go func() {
			if err := stockAlertWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Stock alert worker error: %v", err)
			}
		}()
	}

	ledger := service.NewLedgerService(st, redisClient, eventPublisher)
	lifecycle := service.NewLifecycleService(st, ledger, eventPublisher)

	if redisClient != nil {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := ledger.SyncStockToRedis(warmCtx); err != nil {
			log.Printf("Stock mirror warm-up failed: %v", err)
		}
		warmCancel()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(lifecycle, ledger)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if historyWorker != nil {
		historyWorker.Stop()
	}
	if stockAlertWorker != nil {
		stockAlertWorker.Stop()
	}

	log.Println("Server exited")
}

// runMigrations applies the embedded schema migrations.
func runMigrations(st *store.SQLStore) error {
	source, err := iofs.New(migrations.Files(), ".")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := migratepg.WithInstance(st.GetDB().DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

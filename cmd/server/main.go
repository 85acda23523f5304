package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/api"
	"commerce-service/internal/broker"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"
	"commerce-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce service")

	tp, err := util.InitTracer("commerce-service", cfg.Observ.JaegerEndpoint)
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

	dispatchTimeout := time.Duration(cfg.Commerce.DispatchTimeoutSeconds) * time.Second
	db, err := store.NewStore(cfg.Database.URL, dispatchTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOutbound)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ledger := service.NewInventoryLedger()
	monitor := service.NewStockAlertMonitor(cfg.Commerce.LowStockThreshold)
	dispatcher := service.NewEventDispatcher(db, ledger, monitor, eventPublisher, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	schedulerConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicScheduler, cfg.Kafka.ConsumerGroup)
	schedulerWorker := worker.NewSchedulerWorker(schedulerConsumer, dispatcher)
	go func() {
		if err := schedulerWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Scheduler worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(
		dispatcher,
		db,
		redisClient,
		time.Duration(cfg.Commerce.StockCacheTTLSeconds)*time.Second,
		time.Duration(cfg.Commerce.OverrideLockTTLSeconds)*time.Second,
	)
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
	schedulerWorker.Stop()

	log.Println("Server exited")
}

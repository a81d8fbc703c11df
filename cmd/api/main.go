package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/srgjo27/channel_manager/internal/adapter/handler"
	"github.com/srgjo27/channel_manager/internal/adapter/notifier"
	"github.com/srgjo27/channel_manager/internal/adapter/repository/memory"
	"github.com/srgjo27/channel_manager/internal/adapter/repository/postgres"
	"github.com/srgjo27/channel_manager/internal/core/ports"
	"github.com/srgjo27/channel_manager/internal/core/services"
	"github.com/srgjo27/channel_manager/internal/platform/config"
	"github.com/srgjo27/channel_manager/internal/platform/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Connecting to Redis at %s...", cfg.RedisAddr)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Redis connected successfully!")

	var (
		bookingRepo ports.BookingRepository
		ledgerRepo  ports.LedgerRepository
		directory   ports.RoomDirectory
	)

	if cfg.DBDriver == "memory" {
		log.Println("Running with in-memory storage (development mode).")
		bookingRepo = memory.NewBookingRepository()
		ledgerRepo = memory.NewLedgerRepository()
		directory = memory.NewDirectory()
	} else {
		db, err := database.NewPostgresDB(database.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
		})
		if err != nil {
			log.Fatalf("Failed to connect to db after retries: %v", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		defer db.Close()

		bookingRepo = postgres.NewBookingRepository(db)
		ledgerRepo = postgres.NewLedgerRepository(db)
		directory = postgres.NewDirectory(db)
	}

	emitter := notifier.NewRedisEmitter(redisClient)
	hub := notifier.NewHub(redisClient)

	ledgerService := services.NewLedgerService(ledgerRepo, directory, emitter, cfg.LockWait)
	reservationService := services.NewReservationService(bookingRepo, ledgerService, emitter, redisClient, cfg.AutoConfirmList, cfg.LockWait)
	webhookService := services.NewWebhookService(reservationService, bookingRepo, directory, ledgerService, redisClient, cfg.DedupTTL)

	webhookHandler := handler.NewWebhookHandler(webhookService)
	bookingHandler := handler.NewBookingHandler(reservationService)
	inventoryHandler := handler.NewInventoryHandler(ledgerService, redisClient)
	wsHandler := handler.NewWSHandler(hub)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go hub.Run(workerCtx)
	go reservationService.RunNoShowWorker(workerCtx, cfg.NoShowInterval, cfg.NoShowGrace)

	router := handler.NewRouter(webhookHandler, bookingHandler, inventoryHandler, wsHandler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      cors.AllowAll().Handler(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

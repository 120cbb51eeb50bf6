package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/unilib/circulation-engine/internal/config"
	"github.com/unilib/circulation-engine/internal/handler"
	"github.com/unilib/circulation-engine/internal/repository"
	"github.com/unilib/circulation-engine/internal/service"
	"github.com/unilib/circulation-engine/pkg/response"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	borrowRepo := repository.NewBorrowRepository(db)
	bookRepo := repository.NewBookRepository(db)
	readerRepo := repository.NewReaderRepository(db)

	// Initialize service and handlers
	circulationService := service.NewCirculationService(borrowRepo, bookRepo, redisClient, cfg)
	borrowHandler := handler.NewBorrowHandler(circulationService)
	adminHandler := handler.NewAdminHandler(circulationService, readerRepo)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.GetHealthTimeout())

	// Setup routes
	router := setupRoutes(borrowHandler, adminHandler, healthHandler)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(borrowHandler *handler.BorrowHandler, adminHandler *handler.AdminHandler, healthHandler *handler.HealthHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.CORSMiddleware, response.LoggingMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// Reader routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/borrows", borrowHandler.List).Methods("GET")
	api.HandleFunc("/borrows", borrowHandler.Borrow).Methods("POST")
	api.HandleFunc("/borrows/{id}/renew", borrowHandler.Renew).Methods("POST")
	api.HandleFunc("/books/{id}/availability", borrowHandler.Availability).Methods("GET")

	// Admin routes
	admin := router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(adminHandler.RequireAdmin)

	admin.HandleFunc("/borrows", adminHandler.ListBorrows).Methods("GET")
	admin.HandleFunc("/borrows/stats", adminHandler.Stats).Methods("GET")
	admin.HandleFunc("/borrows/{id}", adminHandler.SetStatus).Methods("PUT")

	return router
}

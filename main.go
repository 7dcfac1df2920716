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

	"github.com/dignitybank/dignity-be/internal/api"
	"github.com/dignitybank/dignity-be/internal/auth"
	"github.com/dignitybank/dignity-be/internal/config"
	"github.com/dignitybank/dignity-be/internal/database"
	"github.com/dignitybank/dignity-be/internal/logger"
	"github.com/dignitybank/dignity-be/internal/monitoring"
	"github.com/dignitybank/dignity-be/internal/services"
	"github.com/dignitybank/dignity-be/internal/store"
	"github.com/dignitybank/dignity-be/internal/ws"
)

func main() {
	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply database migrations: %v", err)
	}

	// Set up the activity feed hub
	hub := ws.NewHub()
	go hub.Run()

	// Set up the ledger store and services
	ledger := store.New(db)
	tokens := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	eventService := services.NewEventService(db, hub)
	accountService := services.NewAccountService(ledger, eventService)

	// Set up and run the background ledger auditor
	auditor, err := monitoring.NewAuditor(db, eventService, cfg.AuditSchedule)
	if err != nil {
		log.Fatalf("Failed to initialize ledger auditor: %v", err)
	}
	go auditor.Run()

	// Set up router
	router := api.NewRouter(db, tokens, hub, accountService, eventService)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on port %d\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	auditor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"deadstock/cache"
	"deadstock/config"
	"deadstock/database"
	"deadstock/handlers"
	"deadstock/middleware"
	"deadstock/routes"
	"deadstock/scheduler"
	"deadstock/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it")
	}

	config.LoadConfig()

	logFile, err := config.SetupLogger()
	if err != nil {
		log.Printf("File logging disabled: %v", err)
	} else {
		defer logFile.Close()
	}

	// Database connection
	if err := database.Connect(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	handlers.InitCollections()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 60*time.Second)
	if err := database.EnsureIndexes(startCtx, database.DB()); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}
	if err := handlers.EnsureAdminUser(startCtx); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	// Redis is optional; dashboards fall back to live queries.
	if err := cache.Init(startCtx); err != nil {
		config.Warning("Redis unavailable, dashboard cache disabled: %v", err)
	}
	cancelStart()

	go websocket.GetHub().Run()

	jobs, err := scheduler.New(config.SchedulerTimezone, scheduler.DefaultJobs())
	if err != nil {
		log.Fatalf("Failed to configure scheduler: %v", err)
	}
	jobs.Start()

	// Router setup
	router := mux.NewRouter()

	// API routes first so the static catch-all never shadows them.
	routes.RegisterRoutes(router)
	routes.LogRoutes(router)

	fs := http.FileServer(http.Dir(config.FrontendDir))
	router.PathPrefix("/").Handler(http.StripPrefix("/", fs))

	// Global middlewares (order matters!)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.CorsMiddleware)

	// HTTP server configuration
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Dead stock register running on http://localhost:%s", config.Port)
		log.Printf(" → Frontend: http://localhost:%s/", config.Port)
		log.Printf(" → Health:   http://localhost:%s/health", config.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	<-quit
	log.Println("Shutting down server...")

	jobs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	if err := cache.Default.Close(); err != nil {
		log.Printf("Redis close warning: %v", err)
	}
	database.Disconnect()
	log.Println("Server stopped gracefully ✓")
}

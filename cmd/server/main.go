/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shipment engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize SQLite store
  3. Start the reminder scheduler and shipment service
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional)
  -addr    HTTP listen address (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

CONFIGURATION:
  Precedence: defaults < config file < environment < flags.
  See config/config.go for the environment variables.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop pending reminder timers
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/shipments.db"

  # Run with a config file
  ./server -config="./shipment.yaml"

  # Run on different address
  ./server -addr=":3000"

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/warp/shipment-engine/api"
	"github.com/warp/shipment-engine/config"
	"github.com/warp/shipment-engine/metrics"
	"github.com/warp/shipment-engine/notify"
	"github.com/warp/shipment-engine/reminder"
	"github.com/warp/shipment-engine/shipment"
	"github.com/warp/shipment-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}

	metrics.Init()

	// Initialize store
	store, err := sqlite.New(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Reminder scheduler and shipment service
	scheduler := reminder.NewTimerScheduler()
	defer scheduler.Stop()

	svc := shipment.NewService(store, scheduler, notify.LogNotifier{}, store)
	svc.Reference = cfg.ReferenceLocation()
	svc.Lead = cfg.ReminderLead

	// Create router
	handler := api.NewHandler(svc, store)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Addr)
		log.Printf("📊 API available at %s/api", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

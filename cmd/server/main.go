/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the equity and profit-distribution server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load tier config (JSON file or built-in defaults)
  4. Wire engines: contributions, KPI, distribution
  5. Configure HTTP router and start quarter-close scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: equity.db)
           Use ":memory:" for in-memory database
  -tiers   Optional JSON tier config file; defaults to the built-in table

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/equity.db"

  # Run with custom tier table
  ./server -tiers="./config/tiers.json"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Trungtrucpixel/vcareglobal-sub002/api"
	"github.com/Trungtrucpixel/vcareglobal-sub002/distribution"
	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
	"github.com/Trungtrucpixel/vcareglobal-sub002/factory"
	"github.com/Trungtrucpixel/vcareglobal-sub002/kpi"
	"github.com/Trungtrucpixel/vcareglobal-sub002/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "equity.db", "SQLite database path")
	tierPath := flag.String("tiers", "", "JSON tier config file (optional)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Tier table and business constants
	tiers := equity.DefaultTierTable()
	params := equity.DefaultParams()
	if *tierPath != "" {
		raw, err := os.ReadFile(*tierPath)
		if err != nil {
			log.Fatalf("Failed to read tier config: %v", err)
		}
		tiers, params, err = factory.NewTierFactory().ParseConfig(string(raw))
		if err != nil {
			log.Fatalf("Failed to parse tier config: %v", err)
		}
		log.Printf("Loaded tier config from %s", *tierPath)
	}

	// Engines; the sqlite store doubles as the audit sink
	engine := equity.NewEngine(params, tiers, store, store)
	kpiEngine := kpi.NewEngine(params, store, store)
	distributor := distribution.NewProcessor(params, tiers, store, store)

	// HTTP
	handler := api.NewHandler(store, engine, kpiEngine, distributor, store)
	router := api.NewRouter(handler)

	// Quarter-close scheduler
	scheduler := api.NewQuarterCloseScheduler(distributor, params)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
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

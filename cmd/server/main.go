/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Emissions Engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize SQLite store
  3. Initialize the AI generator (or its unavailable stub)
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: emissions.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  OPENAI_API_KEY  API key for the analysis generator. When unset the
                  server still runs; analysis sections degrade to their
                  canned failure text.
  OPENAI_MODEL    Model override (default: gpt-4o-mini)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/emissions.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

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

	"github.com/joho/godotenv"

	"github.com/verdant/emissions-engine/api"
	"github.com/verdant/emissions-engine/genai"
	"github.com/verdant/emissions-engine/store/sqlite"
)

const defaultModel = "gpt-4o-mini"

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "emissions.db", "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize the AI generator
	var gen genai.Generator
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = defaultModel
		}
		gen = genai.NewOpenAI(key, model)
		log.Printf("[Server] Analysis generator ready (model=%s)", model)
	} else {
		gen = genai.Unavailable{}
		log.Printf("[Server] Warning: OPENAI_API_KEY not set, analysis will return fallback content")
	}

	// Initialize handler and router
	handler := api.NewHandler(store, gen)
	router := api.NewRouter(handler)

	// Create server. The write timeout is generous because the analysis
	// pipeline issues sequential throttled AI calls within one request.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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

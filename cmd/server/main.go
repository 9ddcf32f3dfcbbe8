/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance analytics server. Handles
  configuration, dependency injection, optional startup ingestion, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load environment settings
  2. Initialize SQLite store
  3. Wire ingester, analytics engine and NLQ service
  4. Auto-ingest the configured export files when AUTO_INGEST=1
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

ENVIRONMENT (see config/config.go):
  DB_PATH, AUTO_INGEST, QB_FILE, ROOTFI_FILE,
  OPENAI_API_KEY, MODEL_NAME, MODEL_VARIANTS

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/finsight/finance-engine/analytics"
	"github.com/finsight/finance-engine/api"
	"github.com/finsight/finance-engine/config"
	"github.com/finsight/finance-engine/nlq"
	"github.com/finsight/finance-engine/statement"
	"github.com/finsight/finance-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbFlag := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "finance-engine",
	})

	settings := config.Load()
	if *dbFlag != "" {
		settings.DBPath = *dbFlag
	}

	// Initialize store
	store, err := sqlite.New(settings.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize database", "err", err)
	}
	defer store.Close()

	// Wire components
	ingester := statement.NewIngester(store)
	engine := analytics.New(store)

	var chat nlq.ChatClient
	if settings.OpenAIKey != "" {
		chat = openai.NewClient(settings.OpenAIKey)
	} else {
		logger.Warn("OPENAI_API_KEY not set; NLQ falls back to hints for unmatched questions")
	}
	variants := settings.ModelVariants
	if len(variants) == 0 {
		variants = []string{settings.ModelName}
	}
	service := nlq.New(store, nlq.Config{
		Chat:     chat,
		Selector: nlq.RandomSelector{},
		Variants: variants,
	}, logger)

	if settings.AutoIngest {
		autoIngest(logger, ingester, settings)
	}

	handler := api.NewHandler(store, ingester, engine, service, logger)
	router := api.NewRouter(handler, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", "addr", fmt.Sprintf("http://localhost:%d", *port), "db", settings.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "err", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "err", err)
	}

	logger.Info("Server stopped")
}

// autoIngest loads the configured export files at startup. Missing or
// malformed files are logged and skipped, not fatal.
func autoIngest(logger *log.Logger, ingester *statement.Ingester, settings config.Settings) {
	ctx := context.Background()

	if payload, err := os.ReadFile(settings.QBFile); err != nil {
		logger.Warn("Auto-ingest: cannot read QuickBooks file", "path", settings.QBFile, "err", err)
	} else if result, err := ingester.IngestQuickBooks(ctx, payload); err != nil {
		logger.Warn("Auto-ingest: QuickBooks ingest failed", "err", err)
	} else {
		logger.Info("Auto-ingest: QuickBooks loaded", "facts", result.InsertedFacts, "periods", len(result.Periods))
	}

	if payload, err := os.ReadFile(settings.RootFiFile); err != nil {
		logger.Warn("Auto-ingest: cannot read RootFi file", "path", settings.RootFiFile, "err", err)
	} else if result, err := ingester.IngestRootFi(ctx, payload); err != nil {
		logger.Warn("Auto-ingest: RootFi ingest failed", "err", err)
	} else {
		logger.Info("Auto-ingest: RootFi loaded", "facts", result.InsertedFacts, "periods", len(result.Periods))
	}
}

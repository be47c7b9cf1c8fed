/*
main.go - voucher scan server entry point

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store (migrates on open)
  3. Build the engine and the chi router
  4. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port         HTTP server port (default: 8080)
  -db           SQLite database path (default: vouchers.db)
                Use ":memory:" for an in-memory database
  -undo-window  duration during which a cash-in may be undone (default: 5m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  in-flight requests, close the store, exit.
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

	"github.com/ldt/voucher-engine/api"
	"github.com/ldt/voucher-engine/engine"
	"github.com/ldt/voucher-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "vouchers.db", "SQLite database path")
	undoWindow := flag.Duration("undo-window", engine.DefaultUndoWindow, "undo window after cash-in")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	eng := engine.New(store, engine.Config{UndoWindow: *undoWindow})
	router := api.NewRouter(api.NewHandler(eng))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Scan server listening on http://localhost:%d (undo window %s)", *port, *undoWindow)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

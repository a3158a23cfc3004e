package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/anomaly.report/internal/api"
	"github.com/banshee-data/anomaly.report/internal/config"
	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/monitoring"
	"github.com/banshee-data/anomaly.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "anomaly.db", "Path to the SQLite database")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	devMode     = flag.Bool("dev", false, "Run in dev mode (debug routes open to all callers)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage:
  anomaly-report [flags]                 serve the API
  anomaly-report [flags] migrate <action> manage the database schema

Flags:
`)
	flag.PrintDefaults()
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// newHandler mounts the API, the admin and debug pages and the request log.
func newHandler(database *db.DB, server *api.Server) (http.Handler, error) {
	mux := server.ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	server.AttachDebugRoutes(mux)
	return api.LoggingMiddleware(mux), nil
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" {
			flag.Usage()
			log.Fatalf("unknown command %q", args[0])
		}
		if err := db.RunMigrateCommand(args[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	log.Printf("starting %s", version.String())

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	metrics := monitoring.NewMetrics()
	handler, err := newHandler(database, api.NewServer(database, tuning, metrics))
	if err != nil {
		log.Fatalf("failed to mount routes: %v", err)
	}
	if *devMode {
		log.Print("dev mode: debug routes are reachable from any address")
		inner := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = "127.0.0.1:0"
			inner.ServeHTTP(w, r)
		})
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

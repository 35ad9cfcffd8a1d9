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

	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/cache"
	"github.com/vigilguard/pii-gateway/internal/config"
	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/langdetect"
	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
	"github.com/vigilguard/pii-gateway/internal/policy"
	"github.com/vigilguard/pii-gateway/internal/recognizer"
	"github.com/vigilguard/pii-gateway/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pii-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Vigil Guard PII gateway",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Policy documents drive detection; watch them for edits.
	policies := policy.NewStore(cfg.Detection.PolicyFile, cfg.Detection.RulesFile, log.WithComponent("policy"))
	if _, err := policies.Current(); err != nil {
		log.Fatal("Failed to load detection policy", zap.Error(err))
	}
	watcher, err := policies.Watch()
	if err != nil {
		log.Warn("Policy file watching unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	detector := langdetect.New(cfg.Services.LanguageURL, cfg.Services.LanguageTimeout, log.WithComponent("langdetect"))
	recog := recognizer.New(cfg.Services.RecognizerURL, cfg.Services.RecognizerTimeout, log.WithComponent("recognizer"))
	analyzer := pii.NewAnalyzer(policies, detector, recog, log.WithComponent("analyzer"))

	opts := server.Options{}
	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(&cfg.Cache, log.WithComponent("cache"))
		if err != nil {
			log.Fatal("Failed to initialize result cache", zap.Error(err))
		}
		defer resultCache.Close()
		opts.ResultCache = resultCache
	}
	if cfg.Events.Enabled {
		eventStore, err := events.NewStore(&cfg.Events, log.WithComponent("events"))
		if err != nil {
			log.Fatal("Failed to initialize event store", zap.Error(err))
		}
		defer eventStore.Close()
		opts.EventStore = eventStore
	}

	srv := server.New(cfg, analyzer, opts, log)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}

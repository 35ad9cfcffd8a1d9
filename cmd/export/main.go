package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/export"
	"github.com/vigilguard/pii-gateway/internal/logger"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("VIGIL_EVENTS_DATABASE_URL"), "PostgreSQL connection URL")
		outputPath  = flag.String("output", "detection_events.parquet", "Output parquet file path")
		sinceRaw    = flag.String("since", "", "Export events created at or after this RFC3339 timestamp (default: 24h ago)")
		limit       = flag.Int("limit", 100000, "Maximum number of events to export")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showStats   = flag.Bool("stats", false, "Show event store statistics and exit")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --database-url postgres://localhost/pii_gateway --output events.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --database-url postgres://localhost/pii_gateway --since 2026-08-01T00:00:00Z\n", os.Args[0])
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: *logLevel, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	since := time.Now().Add(-24 * time.Hour)
	if *sinceRaw != "" {
		since, err = time.Parse(time.RFC3339, *sinceRaw)
		if err != nil {
			log.Fatal("Invalid --since timestamp", zap.String("value", *sinceRaw), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling export...")
		cancel()
	}()

	store, err := events.NewStore(&events.Config{
		Enabled:         true,
		DatabaseURL:     *databaseURL,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}, log.WithComponent("events"))
	if err != nil {
		log.Fatal("Failed to connect to event store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		stats, err := store.GetStats(ctx)
		if err != nil {
			log.Fatal("Failed to load event stats", zap.Error(err))
		}
		fmt.Printf("total events:       %d\n", stats.TotalEvents)
		fmt.Printf("complete events:    %d\n", stats.CompleteEvents)
		fmt.Printf("avg processing ms:  %.2f\n", stats.AvgProcessingMs)
		return
	}

	exporter := export.New(store, log.WithComponent("export"))
	result, err := exporter.Run(ctx, since, *limit, *outputPath)
	if err != nil {
		log.Fatal("Export failed", zap.Error(err))
	}

	log.Info("Export finished",
		zap.Int64("rows", result.Rows),
		zap.String("output", result.Output),
	)
}

// Package export dumps recorded detection events to parquet files for
// ingestion by the analytics warehouse.
package export

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/logger"
)

// Row is the parquet row schema for one detection event.
type Row struct {
	RequestID         string `parquet:"request_id" json:"request_id"`
	Language          string `parquet:"language" json:"language"`
	DetectionMethod   string `parquet:"detection_method" json:"detection_method"`
	EntityCount       int32  `parquet:"entity_count" json:"entity_count"`
	EntityTypes       string `parquet:"entity_types" json:"entity_types"`
	RegexMatches      int32  `parquet:"regex_matches" json:"regex_matches"`
	RegexFailures     int32  `parquet:"regex_failures" json:"regex_failures"`
	DetectionComplete bool   `parquet:"detection_complete" json:"detection_complete"`
	ProcessingMs      int64  `parquet:"processing_ms" json:"processing_ms"`
	CreatedAt         int64  `parquet:"created_at_unix_ms" json:"created_at_unix_ms"`
}

// Result summarizes one export run.
type Result struct {
	Rows     int64         `json:"rows"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// EventLister is the slice of the event store the exporter needs.
type EventLister interface {
	List(ctx context.Context, since time.Time, limit int) ([]events.Event, error)
}

// Exporter writes detection events to parquet.
type Exporter struct {
	store  EventLister
	logger *logger.Logger
}

// New creates an exporter over the given event source.
func New(store EventLister, log *logger.Logger) *Exporter {
	return &Exporter{store: store, logger: log}
}

// Run exports events created at or after since into a parquet file at
// outputPath. The file is written atomically via a temp file rename.
func (e *Exporter) Run(ctx context.Context, since time.Time, limit int, outputPath string) (*Result, error) {
	start := time.Now()

	recorded, err := e.store.List(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	tmpPath := outputPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	writer := parquet.NewWriter(file)
	var rows int64
	for _, event := range recorded {
		if err := writer.Write(toRow(event)); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
		rows++
	}

	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename output file: %w", err)
	}

	result := &Result{
		Rows:     rows,
		Output:   outputPath,
		Duration: time.Since(start),
	}

	e.logger.Info("Export completed",
		zap.Int64("rows", result.Rows),
		zap.String("output", result.Output),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func toRow(event events.Event) *Row {
	return &Row{
		RequestID:         event.RequestID,
		Language:          event.Language,
		DetectionMethod:   event.DetectionMethod,
		EntityCount:       int32(event.EntityCount),
		EntityTypes:       strings.Join(event.EntityTypes, ","),
		RegexMatches:      int32(event.RegexMatches),
		RegexFailures:     int32(event.RegexFailures),
		DetectionComplete: event.DetectionComplete,
		ProcessingMs:      event.ProcessingMs,
		CreatedAt:         event.CreatedAt.UnixMilli(),
	}
}

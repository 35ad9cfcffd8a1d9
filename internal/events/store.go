// Package events persists per-request detection statistics to PostgreSQL
// for the analytics warehouse. Only metadata is recorded: the analyzed
// text, redacted or not, never reaches the database.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/logger"
)

// Config contains database configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Event is one recorded analysis.
type Event struct {
	ID                int64          `db:"id"`
	RequestID         string         `db:"request_id"`
	Language          string         `db:"language"`
	DetectionMethod   string         `db:"detection_method"`
	EntityCount       int            `db:"entity_count"`
	EntityTypes       pq.StringArray `db:"entity_types"`
	RegexMatches      int            `db:"regex_matches"`
	RegexFailures     int            `db:"regex_failures"`
	DetectionComplete bool           `db:"detection_complete"`
	ProcessingMs      int64          `db:"processing_ms"`
	CreatedAt         time.Time      `db:"created_at"`
}

// StoreStats summarizes the recorded events.
type StoreStats struct {
	TotalEvents     int64   `db:"total"`
	CompleteEvents  int64   `db:"complete"`
	AvgProcessingMs float64 `db:"avg_processing_ms"`
}

// Store handles detection-event persistence.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS detection_events (
	id                 BIGSERIAL PRIMARY KEY,
	request_id         TEXT NOT NULL,
	language           TEXT NOT NULL,
	detection_method   TEXT NOT NULL,
	entity_count       INTEGER NOT NULL,
	entity_types       TEXT[] NOT NULL DEFAULT '{}',
	regex_matches      INTEGER NOT NULL DEFAULT 0,
	regex_failures     INTEGER NOT NULL DEFAULT 0,
	detection_complete BOOLEAN NOT NULL,
	processing_ms      BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewStore connects to the database and ensures the event table exists.
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{db: db, logger: log}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize event store: %w", err)
	}

	log.Info("Event store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create detection_events table: %w", err)
	}
	return nil
}

// Record persists one detection event.
func (s *Store) Record(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO detection_events
			(request_id, language, detection_method, entity_count, entity_types,
			 regex_matches, regex_failures, detection_complete, processing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		event.RequestID,
		event.Language,
		event.DetectionMethod,
		event.EntityCount,
		event.EntityTypes,
		event.RegexMatches,
		event.RegexFailures,
		event.DetectionComplete,
		event.ProcessingMs,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to record detection event",
			zap.Error(err),
			zap.String("request_id", event.RequestID),
		)
		return fmt.Errorf("failed to record detection event: %w", err)
	}

	return nil
}

// List returns events created at or after since, oldest first, capped at
// limit.
func (s *Store) List(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	var events []Event
	query := `
		SELECT id, request_id, language, detection_method, entity_count,
		       entity_types, regex_matches, regex_failures, detection_complete,
		       processing_ms, created_at
		FROM detection_events
		WHERE created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := s.db.SelectContext(ctx, &events, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list detection events: %w", err)
	}
	return events, nil
}

// GetStats returns aggregate statistics over all recorded events.
func (s *Store) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN detection_complete THEN 1 END) AS complete,
			COALESCE(AVG(processing_ms), 0) AS avg_processing_ms
		FROM detection_events`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}

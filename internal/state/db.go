// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS venues (
			address TEXT PRIMARY KEY,
			reported_yield_bps BIGINT NOT NULL,
			allocation NUMERIC(78, 0) NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);

		-- Single-row table for the engine's aggregate state and parameters
		CREATE TABLE IF NOT EXISTS engine_state (
			id INTEGER PRIMARY KEY DEFAULT 1,
			total_allocated NUMERIC(78, 0) NOT NULL,
			last_rebalance_time TIMESTAMPTZ NOT NULL,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			max_venue_allocation_bps BIGINT NOT NULL,
			min_allocation NUMERIC(78, 0) NOT NULL,
			min_slippage_bps BIGINT NOT NULL,
			max_slippage_bps BIGINT NOT NULL,
			rebalance_threshold_bps BIGINT NOT NULL,
			rebalance_cooldown_seconds BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Append-only journal of engine notifications
		CREATE TABLE IF NOT EXISTS engine_events (
			event_id SERIAL PRIMARY KEY,
			op_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			venue TEXT,
			amount NUMERIC(78, 0),
			yield_bps BIGINT,
			detail TEXT,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_engine_events_timestamp ON engine_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_engine_events_type ON engine_events(event_type);
		CREATE INDEX IF NOT EXISTS idx_engine_events_op ON engine_events(op_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

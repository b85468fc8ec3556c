package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"bilet/internal/config"
)

// DB wraps sql.DB with application-specific helpers
type DB struct {
	*sql.DB
}

// Connect establishes a connection to PostgreSQL
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

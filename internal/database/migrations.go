package database

import (
	"fmt"

	"bilet/internal/logger"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createShowingsTable = `
CREATE TABLE IF NOT EXISTS showings (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    starts_at TIMESTAMPTZ NOT NULL,
    admission_limit INTEGER NOT NULL DEFAULT 0,
    total_seats INTEGER NOT NULL DEFAULT 0,
    available_seats INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSeatsTable = `
CREATE TABLE IF NOT EXISTS seats (
    id BIGSERIAL PRIMARY KEY,
    showing_id BIGINT NOT NULL REFERENCES showings(id),
    zone VARCHAR(32) NOT NULL,
    row_number INTEGER NOT NULL,
    seat_number INTEGER NOT NULL,
    grade VARCHAR(32) NOT NULL,
    price BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
    version BIGINT NOT NULL DEFAULT 0,
    UNIQUE (showing_id, zone, row_number, seat_number)
);
CREATE INDEX IF NOT EXISTS idx_seats_showing_status ON seats(showing_id, status);`

const createQueueTokensTable = `
CREATE TABLE IF NOT EXISTS queue_tokens (
    token VARCHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    showing_id BIGINT NOT NULL REFERENCES showings(id),
    status VARCHAR(16) NOT NULL DEFAULT 'WAITING',
    issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    activated_at TIMESTAMPTZ,
    hold_expires_at TIMESTAMPTZ,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_live_per_user
    ON queue_tokens(user_id, showing_id)
    WHERE status IN ('WAITING', 'ACTIVE');
CREATE INDEX IF NOT EXISTS idx_tokens_showing_status ON queue_tokens(showing_id, status, issued_at);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    number VARCHAR(64) UNIQUE NOT NULL,
    user_id BIGINT NOT NULL REFERENCES users(id),
    showing_id BIGINT NOT NULL REFERENCES showings(id),
    status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
    total_price BIGINT NOT NULL DEFAULT 0,
    expires_at TIMESTAMPTZ NOT NULL,
    cancel_reason TEXT,
    cancelled_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id);`

const createBookingSeatsTable = `
CREATE TABLE IF NOT EXISTS booking_seats (
    booking_id BIGINT NOT NULL REFERENCES bookings(id),
    seat_id BIGINT NOT NULL REFERENCES seats(id),
    zone VARCHAR(32) NOT NULL,
    row_number INTEGER NOT NULL,
    seat_number INTEGER NOT NULL,
    price BIGINT NOT NULL,
    PRIMARY KEY (booking_id, seat_id)
);`

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	log := logger.Get()
	log.Info("Running database migrations...")

	migrations := []struct {
		name string
		sql  string
	}{
		{"users", createUsersTable},
		{"showings", createShowingsTable},
		{"seats", createSeatsTable},
		{"queue_tokens", createQueueTokensTable},
		{"bookings", createBookingsTable},
		{"booking_seats", createBookingSeatsTable},
	}

	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.name, err)
		}
		log.Debug("Migration applied", "table", m.name)
	}

	log.Info("Database migrations completed successfully")
	return nil
}

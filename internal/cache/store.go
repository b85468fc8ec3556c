// Package cache provides the shared counter store backing admission
// control: per-showing active session slots and per-session heartbeats.
// Two implementations exist, Redis for clustered deployments and an
// in-process store for single-node setups and tests.
package cache

import (
	"context"
	"time"
)

// SlotStore is the shared admission state. AcquireSlot must be atomic:
// concurrent callers over capacity never all succeed.
type SlotStore interface {
	// AcquireSlot increments the active session count for the showing if it
	// is below capacity. Returns false when the showing is full.
	AcquireSlot(ctx context.Context, showingID int64, capacity int) (bool, error)

	// ReleaseSlot decrements the active session count, clamped at zero.
	ReleaseSlot(ctx context.Context, showingID int64) error

	// ActiveSlots returns the current active session count.
	ActiveSlots(ctx context.Context, showingID int64) (int, error)

	// SetHeartbeat records liveness for the session with the given TTL,
	// creating or refreshing the entry.
	SetHeartbeat(ctx context.Context, showingID, userID int64, ttl time.Duration) error

	// HeartbeatAlive reports whether the session has a live heartbeat.
	HeartbeatAlive(ctx context.Context, showingID, userID int64) (bool, error)

	// DeleteHeartbeat removes the session's heartbeat.
	DeleteHeartbeat(ctx context.Context, showingID, userID int64) error
}

// AuthCache caches resolved credentials so hot paths skip the users table.
type AuthCache interface {
	GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error)
	CacheUserAuth(ctx context.Context, email, passwordHash string, userID int64) error
}

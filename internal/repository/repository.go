// Package repository provides the persistent stores for showings, seats,
// queue tokens, bookings and users. Each store is an interface with a
// PostgreSQL implementation and an in-process one; the optimistic locking
// contract (compare-and-set on status and version) is identical in both.
package repository

import (
	"context"
	"time"

	"bilet/internal/database"
	"bilet/internal/models"
)

// UserRepository resolves user accounts for the auth middleware.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// ShowingRepository manages showings and their available-seat counter.
type ShowingRepository interface {
	// Create inserts the showing and generates its seat ledger from the
	// zone plans, all in one transaction.
	Create(ctx context.Context, showing *models.Showing, zones []models.ZonePlan) error

	GetByID(ctx context.Context, id int64) (*models.Showing, error)
	List(ctx context.Context, page, pageSize int) ([]models.Showing, error)

	// AdjustAvailableSeats atomically applies delta to the counter, failing
	// when the result would fall below zero or exceed total seats. Returns
	// false when the guard rejects the update.
	AdjustAvailableSeats(ctx context.Context, id int64, delta int) (bool, error)
}

// SeatRepository is the seat ledger with compare-and-set transitions.
type SeatRepository interface {
	GetBySelection(ctx context.Context, showingID int64, zone string, row, number int) (*models.Seat, error)
	ListByShowing(ctx context.Context, showingID int64, page, pageSize int, zone *string, status *models.SeatStatus) ([]models.Seat, error)

	// Lock transitions AVAILABLE -> LOCKED iff the version still matches.
	Lock(ctx context.Context, seatID, version int64) (bool, error)

	// Unlock transitions LOCKED -> AVAILABLE. Used for rollback and release.
	Unlock(ctx context.Context, seatID int64) (bool, error)

	// MarkSold transitions LOCKED -> SOLD on confirmation.
	MarkSold(ctx context.Context, seatID int64) (bool, error)

	// SellAvailable transitions AVAILABLE -> SOLD. Confirmation falls back
	// to it when a sweep released the lock before the payment landed.
	SellAvailable(ctx context.Context, seatID int64) (bool, error)

	// ReleaseSold transitions SOLD -> AVAILABLE when a confirmed booking
	// is cancelled.
	ReleaseSold(ctx context.Context, seatID int64) (bool, error)
}

// TokenRepository stores queue tokens and their state machine.
type TokenRepository interface {
	Create(ctx context.Context, token *models.QueueToken) error
	GetByToken(ctx context.Context, token string) (*models.QueueToken, error)

	// GetLive returns the caller's WAITING or ACTIVE token for the showing,
	// or ErrNotFound.
	GetLive(ctx context.Context, userID, showingID int64) (*models.QueueToken, error)

	// UpdateStatus is the transition CAS: it succeeds only when the token
	// is still in the from status. holdExpiresAt is written on activation.
	UpdateStatus(ctx context.Context, token string, from, to models.TokenStatus, holdExpiresAt *time.Time) (bool, error)

	// WaitingPosition returns the 1-based FIFO position of a WAITING token:
	// the number of WAITING tokens for the showing issued before it, plus one.
	WaitingPosition(ctx context.Context, tok *models.QueueToken) (int, error)

	// ListWaiting returns up to limit WAITING tokens for the showing in
	// issue order. limit <= 0 means no limit.
	ListWaiting(ctx context.Context, showingID int64, limit int) ([]models.QueueToken, error)

	// ListWaitingShowings returns the showings that currently have WAITING tokens.
	ListWaitingShowings(ctx context.Context) ([]int64, error)

	// ListActive returns every ACTIVE token, for liveness sweeps.
	ListActive(ctx context.Context) ([]models.QueueToken, error)

	// ListHoldLapsed returns ACTIVE tokens whose activation hold lapsed.
	ListHoldLapsed(ctx context.Context, now time.Time) ([]models.QueueToken, error)

	// ListDeadlineLapsed returns live tokens past their overall expiry.
	ListDeadlineLapsed(ctx context.Context, now time.Time) ([]models.QueueToken, error)

	// PurgeTerminalBefore deletes terminal tokens last updated before cutoff.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookingRepository stores bookings and their seats.
type BookingRepository interface {
	// Create inserts the booking and its seat rows in one transaction.
	Create(ctx context.Context, booking *models.Booking) error

	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)

	// UpdateStatus is the finalization CAS, succeeding only from the given
	// status. reason is stored on cancellation.
	UpdateStatus(ctx context.Context, id int64, from, to models.BookingStatus, reason *string) (bool, error)

	// ListExpiredPending returns PENDING bookings whose hold lapsed.
	ListExpiredPending(ctx context.Context, now time.Time) ([]models.Booking, error)

	// CountPendingByShowing counts PENDING bookings for a showing.
	CountPendingByShowing(ctx context.Context, showingID int64) (int, error)
}

// Repositories bundles the five stores.
type Repositories struct {
	Users    UserRepository
	Showings ShowingRepository
	Seats    SeatRepository
	Tokens   TokenRepository
	Bookings BookingRepository
}

// NewPostgres wires the PostgreSQL implementations.
func NewPostgres(db *database.DB) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db),
		Showings: NewShowingRepository(db),
		Seats:    NewSeatRepository(db),
		Tokens:   NewTokenRepository(db),
		Bookings: NewBookingRepository(db),
	}
}

// NewMemory wires the in-process implementations sharing one state.
func NewMemory() *Repositories {
	st := newMemoryState()
	return &Repositories{
		Users:    &memoryUsers{st},
		Showings: &memoryShowings{st},
		Seats:    &memorySeats{st},
		Tokens:   &memoryTokens{st},
		Bookings: &memoryBookings{st},
	}
}

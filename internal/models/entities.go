package models

import "time"

// SeatStatus tracks a seat through the reservation lifecycle.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatLocked    SeatStatus = "LOCKED"
	SeatSold      SeatStatus = "SOLD"
)

// TokenStatus is the queue token state machine.
// WAITING and ACTIVE are live; the rest are terminal.
type TokenStatus string

const (
	TokenWaiting   TokenStatus = "WAITING"
	TokenActive    TokenStatus = "ACTIVE"
	TokenUsed      TokenStatus = "USED"
	TokenExpired   TokenStatus = "EXPIRED"
	TokenCancelled TokenStatus = "CANCELLED"
	TokenSoldOut   TokenStatus = "SOLD_OUT"
)

// Terminal reports whether the status admits no further transitions.
func (s TokenStatus) Terminal() bool {
	switch s {
	case TokenUsed, TokenExpired, TokenCancelled, TokenSoldOut:
		return true
	}
	return false
}

// BookingStatus tracks a booking through its hold and finalization.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// User represents a user account
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Showing is a sellable performance with its seat inventory counters.
// AvailableSeats always equals the number of AVAILABLE rows in the seat
// ledger; Version guards concurrent counter adjustments.
type Showing struct {
	ID             int64     `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	StartsAt       time.Time `json:"starts_at" db:"starts_at"`
	AdmissionLimit int       `json:"admission_limit" db:"admission_limit"`
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	AvailableSeats int       `json:"available_seats" db:"available_seats"`
	Version        int64     `json:"-" db:"version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Seat is one entry in a showing's seat ledger. Version increases on every
// status change and is the optimistic locking handle.
type Seat struct {
	ID        int64      `json:"id" db:"id"`
	ShowingID int64      `json:"showing_id" db:"showing_id"`
	Zone      string     `json:"zone" db:"zone"`
	Row       int        `json:"row" db:"row_number"`
	Number    int        `json:"number" db:"seat_number"`
	Grade     string     `json:"grade" db:"grade"`
	Price     int64      `json:"price" db:"price"`
	Status    SeatStatus `json:"status" db:"status"`
	Version   int64      `json:"-" db:"version"`
}

// QueueToken is an admission ticket for one user and one showing.
// At most one non-terminal token exists per (user, showing).
type QueueToken struct {
	Token         string      `json:"token" db:"token"`
	UserID        int64       `json:"user_id" db:"user_id"`
	ShowingID     int64       `json:"showing_id" db:"showing_id"`
	Status        TokenStatus `json:"status" db:"status"`
	IssuedAt      time.Time   `json:"issued_at" db:"issued_at"`
	ActivatedAt   *time.Time  `json:"activated_at,omitempty" db:"activated_at"`
	HoldExpiresAt *time.Time  `json:"hold_expires_at,omitempty" db:"hold_expires_at"`
	ExpiresAt     time.Time   `json:"expires_at" db:"expires_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Booking holds a set of locked seats until payment confirms or the hold
// lapses. TotalPrice is captured at creation from the seat ledger.
type Booking struct {
	ID           int64         `json:"id" db:"id"`
	Number       string        `json:"number" db:"number"`
	UserID       int64         `json:"user_id" db:"user_id"`
	ShowingID    int64         `json:"showing_id" db:"showing_id"`
	Status       BookingStatus `json:"status" db:"status"`
	TotalPrice   int64         `json:"total_price" db:"total_price"`
	ExpiresAt    time.Time     `json:"expires_at" db:"expires_at"`
	CancelReason *string       `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	Seats        []BookingSeat `json:"seats,omitempty" db:"-"`
}

// BookingSeat records one seat of a booking with its captured price.
type BookingSeat struct {
	BookingID int64  `json:"-" db:"booking_id"`
	SeatID    int64  `json:"seat_id" db:"seat_id"`
	Zone      string `json:"zone" db:"zone"`
	Row       int    `json:"row" db:"row_number"`
	Number    int    `json:"number" db:"seat_number"`
	Price     int64  `json:"price" db:"price"`
}

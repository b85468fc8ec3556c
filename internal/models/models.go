package models

import "time"

// AdmissionCheckRequest asks whether the caller may start selecting seats
// for a showing.
type AdmissionCheckRequest struct {
	ShowingID int64 `json:"showing_id" binding:"required"`
}

// AdmissionCheckResponse reports the admission decision. When RequiresQueue
// is false the token is ACTIVE and booking may proceed immediately.
type AdmissionCheckResponse struct {
	RequiresQueue        bool   `json:"requires_queue"`
	Token                string `json:"token"`
	Status               string `json:"status"`
	PositionInQueue      int    `json:"position_in_queue"`
	EstimatedWaitSeconds int64  `json:"estimated_wait_seconds"`
}

// HeartbeatRequest refreshes the caller's liveness for a showing.
type HeartbeatRequest struct {
	ShowingID int64 `json:"showing_id" binding:"required"`
}

// ReleaseRequest ends the caller's admission for a showing.
type ReleaseRequest struct {
	ShowingID int64 `json:"showing_id" binding:"required"`
}

// TokenStatusResponse is returned by the queue status endpoint.
type TokenStatusResponse struct {
	Status               string     `json:"status"`
	PositionInQueue      int        `json:"position_in_queue"`
	EstimatedWaitSeconds int64      `json:"estimated_wait_seconds"`
	IsActiveForBooking   bool       `json:"is_active_for_booking"`
	HoldExpiresAt        *time.Time `json:"hold_expires_at,omitempty"`
}

// SeatSelection addresses one seat by its position in the seat map.
type SeatSelection struct {
	Zone   string `json:"zone" binding:"required"`
	Row    int    `json:"row" binding:"required,min=1"`
	Number int    `json:"number" binding:"required,min=1"`
}

// CreateBookingRequest locks the selected seats under a new booking.
type CreateBookingRequest struct {
	ShowingID  int64           `json:"showing_id" binding:"required"`
	QueueToken string          `json:"queue_token" binding:"required"`
	Seats      []SeatSelection `json:"seats" binding:"required,min=1,dive"`
}

// ConfirmBookingRequest finalizes a pending booking after payment.
type ConfirmBookingRequest struct {
	BookingID int64 `json:"booking_id" binding:"required"`
}

// CancelBookingRequest cancels a booking and releases its seats.
type CancelBookingRequest struct {
	BookingID int64  `json:"booking_id" binding:"required"`
	Reason    string `json:"reason"`
}

// ZonePlan describes one zone of a showing's seat map.
type ZonePlan struct {
	Zone        string `json:"zone" binding:"required"`
	Rows        int    `json:"rows" binding:"required,min=1"`
	SeatsPerRow int    `json:"seats_per_row" binding:"required,min=1"`
	Grade       string `json:"grade" binding:"required"`
	Price       int64  `json:"price" binding:"required,min=0"`
}

// CreateShowingRequest creates a showing and generates its seat ledger.
type CreateShowingRequest struct {
	Title          string     `json:"title" binding:"required"`
	StartsAt       *time.Time `json:"starts_at" binding:"required"`
	AdmissionLimit int        `json:"admission_limit"`
	Zones          []ZonePlan `json:"zones" binding:"required,min=1,dive"`
}

// PaymentNotification is the payment gateway callback payload.
// Status is "completed" or "failed".
type PaymentNotification struct {
	BookingID int64  `json:"booking_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the uniform success body for operations with no payload.
type StatusResponse struct {
	Status string `json:"status"`
}

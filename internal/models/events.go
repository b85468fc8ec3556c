package models

import "time"

// NATS subjects published and consumed by the services.
const (
	SubjectTokenActivated    = "token.activated"
	SubjectTokenExpired      = "token.expired"
	SubjectAdmissionReleased = "admission.released"
	SubjectBookingCreated    = "booking.created"
	SubjectBookingConfirmed  = "booking.confirmed"
	SubjectBookingCancelled  = "booking.cancelled"
	SubjectPaymentCompleted  = "payment.completed"
	SubjectPaymentFailed     = "payment.failed"
)

// TokenEvent is published on queue token transitions.
type TokenEvent struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ShowingID int64     `json:"showing_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingEvent is published on booking transitions.
type BookingEvent struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	ShowingID int64     `json:"showing_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentEvent is consumed from the payment gateway integration.
type PaymentEvent struct {
	BookingID int64     `json:"booking_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

package consumers

import (
	"context"
	"encoding/json"

	"github.com/nats-io/stan.go"

	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/models"
	"bilet/internal/service"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

// HandlePaymentCompleted confirms the paid booking. The message is acked on
// every terminal outcome; only transient failures leave it for redelivery.
func (h *Handlers) HandlePaymentCompleted(m *stan.Msg) {
	log := logger.Get()

	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		log.Error("Failed to unmarshal payment completed event", "error", err)
		m.Ack()
		return
	}

	ctx := context.Background()
	if _, err := h.services.Bookings.Confirm(ctx, event.BookingID); err != nil {
		if bileterr.Is(err, bileterr.ErrNotFound) || bileterr.Is(err, bileterr.ErrConflict) {
			log.Warn("Payment confirmation not applicable",
				"booking_id", event.BookingID, "error", err)
			m.Ack()
			return
		}
		log.Error("Failed to confirm booking, leaving for redelivery",
			"booking_id", event.BookingID, "error", err)
		return
	}

	log.Info("Booking confirmed from payment event", "booking_id", event.BookingID)
	m.Ack()
}

// HandlePaymentFailed cancels the booking and frees its seats.
func (h *Handlers) HandlePaymentFailed(m *stan.Msg) {
	log := logger.Get()

	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		log.Error("Failed to unmarshal payment failed event", "error", err)
		m.Ack()
		return
	}

	ctx := context.Background()
	err := h.services.Bookings.Cancel(ctx, event.BookingID, 0, "payment failed")
	if err != nil && !bileterr.Is(err, bileterr.ErrAlreadyCancelled) {
		if bileterr.Is(err, bileterr.ErrNotFound) {
			m.Ack()
			return
		}
		log.Error("Failed to cancel booking, leaving for redelivery",
			"booking_id", event.BookingID, "error", err)
		return
	}

	log.Info("Booking cancelled from payment event", "booking_id", event.BookingID)
	m.Ack()
}

func (h *Handlers) HandleBookingCreated(m *stan.Msg) {
	var event models.BookingEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal booking created event", "error", err)
		m.Ack()
		return
	}

	logger.Get().Info("Booking created",
		"booking_id", event.BookingID, "showing_id", event.ShowingID, "user_id", event.UserID)
	m.Ack()
}

func (h *Handlers) HandleBookingCancelled(m *stan.Msg) {
	var event models.BookingEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal booking cancelled event", "error", err)
		m.Ack()
		return
	}

	logger.Get().Info("Booking cancelled",
		"booking_id", event.BookingID, "showing_id", event.ShowingID)
	m.Ack()
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/middleware"
	"bilet/internal/models"
)

// CreateBooking - POST /api/bookings
// Locks the selected seats under a PENDING booking.
func (h *Handlers) CreateBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	booking, err := h.services.Bookings.Create(c.Request.Context(), userID, &req)
	if err != nil {
		logger.Get().Warn("Booking creation failed",
			"user_id", userID, "showing_id", req.ShowingID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ConfirmBooking - POST /api/bookings/confirm
// Finalizes a pending booking after payment.
func (h *Handlers) ConfirmBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if _, err := h.services.Bookings.GetByID(c.Request.Context(), req.BookingID, userID); err != nil {
		respondError(c, err)
		return
	}

	booking, err := h.services.Bookings.Confirm(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking - POST /api/bookings/cancel
// Releases the booking's seats. Repeat cancellation returns success.
func (h *Handlers) CancelBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	err := h.services.Bookings.Cancel(c.Request.Context(), req.BookingID, userID, req.Reason)
	if err != nil && !bileterr.Is(err, bileterr.ErrAlreadyCancelled) {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "cancelled"})
}

// ListBookings - GET /api/bookings
// Returns the caller's bookings.
func (h *Handlers) ListBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	bookings, err := h.services.Bookings.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

// PaymentNotification - POST /api/payments/notifications
// Payment gateway callback: completed confirms, anything else cancels.
func (h *Handlers) PaymentNotification(c *gin.Context) {
	var req models.PaymentNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.Status == "completed" {
		if _, err := h.services.Bookings.Confirm(ctx, req.BookingID); err != nil {
			respondError(c, err)
			return
		}
	} else {
		err := h.services.Bookings.Cancel(ctx, req.BookingID, 0, "payment "+req.Status)
		if err != nil && !bileterr.Is(err, bileterr.ErrAlreadyCancelled) {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

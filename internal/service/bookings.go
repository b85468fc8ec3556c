package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilet/internal/config"
	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/messaging"
	"bilet/internal/metrics"
	"bilet/internal/models"
	"bilet/internal/repository"
)

// BookingService is the seat reservation engine and finalizer. Seats are
// taken with optimistic locks, all or nothing: a selection that cannot be
// locked in full rolls back every seat it already took.
type BookingService struct {
	repos  *repository.Repositories
	tokens *TokenService
	nats   messaging.Publisher
	cfg    *config.Config
}

func NewBookingService(repos *repository.Repositories, tokens *TokenService, nats messaging.Publisher, cfg *config.Config) *BookingService {
	return &BookingService{repos: repos, tokens: tokens, nats: nats, cfg: cfg}
}

// Create locks the selected seats under a new PENDING booking and consumes
// the queue token.
func (s *BookingService) Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.Booking, error) {
	token, err := s.validateToken(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	seats, err := s.resolveSeats(ctx, req)
	if err != nil {
		return nil, err
	}

	locked, err := s.lockAll(ctx, seats)
	if err != nil {
		s.unlockSeats(ctx, locked)
		return nil, err
	}

	ok, err := s.repos.Showings.AdjustAvailableSeats(ctx, req.ShowingID, -len(locked))
	if err != nil || !ok {
		s.unlockSeats(ctx, locked)
		if err != nil {
			return nil, fmt.Errorf("failed to adjust seat counter: %w", err)
		}
		return nil, bileterr.ErrCapacityExhausted
	}

	booking := &models.Booking{
		Number:     uuid.New().String(),
		UserID:     userID,
		ShowingID:  req.ShowingID,
		Status:     models.BookingPending,
		ExpiresAt:  time.Now().Add(s.cfg.Queue.BookingHold),
		TotalPrice: 0,
	}
	for _, seat := range locked {
		booking.TotalPrice += seat.Price
		booking.Seats = append(booking.Seats, models.BookingSeat{
			SeatID: seat.ID,
			Zone:   seat.Zone,
			Row:    seat.Row,
			Number: seat.Number,
			Price:  seat.Price,
		})
	}

	if err := s.repos.Bookings.Create(ctx, booking); err != nil {
		s.unlockSeats(ctx, locked)
		if _, adjErr := s.repos.Showings.AdjustAvailableSeats(ctx, req.ShowingID, len(locked)); adjErr != nil {
			logger.Get().Error("Failed to restore seat counter",
				"showing_id", req.ShowingID, "error", adjErr)
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	// The session did its work; losing this CAS means the sweep expired the
	// token in between, which already released the slot.
	if _, err := s.tokens.MarkUsed(ctx, token); err != nil {
		logger.Get().Warn("Failed to consume queue token",
			"token", token.Token, "error", err)
	}

	s.publishBooking(booking, models.SubjectBookingCreated)
	return booking, nil
}

// Confirm finalizes a pending booking after payment. Confirming an already
// confirmed booking is a no-op.
func (s *BookingService) Confirm(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	won, err := s.repos.Bookings.UpdateStatus(ctx, bookingID, models.BookingPending, models.BookingConfirmed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !won {
		current, err := s.repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.BookingConfirmed {
			return current, nil
		}
		// The hold lapsed or the booking was cancelled under us.
		return nil, bileterr.ErrConflict
	}

	for _, bs := range booking.Seats {
		sold, err := s.repos.Seats.MarkSold(ctx, bs.SeatID)
		if err == nil && !sold {
			// A sweep may have released the lock and restored the counter
			// before the payment landed. Take the seat back from inventory.
			if sold, err = s.repos.Seats.SellAvailable(ctx, bs.SeatID); err == nil && sold {
				if ok, cerr := s.repos.Showings.AdjustAvailableSeats(ctx, booking.ShowingID, -1); cerr != nil || !ok {
					logger.Get().Error("Failed to adjust seat counter on confirm",
						"booking_id", bookingID, "showing_id", booking.ShowingID, "error", cerr)
				}
			}
		}
		if err != nil || !sold {
			logger.Get().Error("Failed to mark seat sold",
				"booking_id", bookingID, "seat_id", bs.SeatID, "error", err)
		}
	}

	booking.Status = models.BookingConfirmed
	metrics.BookingsFinalized.WithLabelValues("confirmed").Inc()
	s.publishBooking(booking, models.SubjectBookingConfirmed)
	return booking, nil
}

// Cancel releases a booking's seats back to inventory. Works from both
// PENDING and CONFIRMED; repeat cancellation reports ErrAlreadyCancelled,
// which callers treat as success.
func (s *BookingService) Cancel(ctx context.Context, bookingID, userID int64, reason string) error {
	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if userID > 0 && booking.UserID != userID {
		return bileterr.ErrForbidden
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	if won, err := s.repos.Bookings.UpdateStatus(ctx, bookingID, models.BookingPending, models.BookingCancelled, reasonPtr); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	} else if won {
		s.releaseSeats(ctx, booking, false)
		metrics.BookingsFinalized.WithLabelValues("cancelled").Inc()
		s.publishBooking(booking, models.SubjectBookingCancelled)
		return nil
	}

	if won, err := s.repos.Bookings.UpdateStatus(ctx, bookingID, models.BookingConfirmed, models.BookingCancelled, reasonPtr); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	} else if won {
		s.releaseSeats(ctx, booking, true)
		metrics.BookingsFinalized.WithLabelValues("cancelled").Inc()
		s.publishBooking(booking, models.SubjectBookingCancelled)
		return nil
	}

	return bileterr.ErrAlreadyCancelled
}

// ExpireHold cancels a PENDING booking whose hold lapsed. Called by the sweep.
func (s *BookingService) ExpireHold(ctx context.Context, booking *models.Booking) (bool, error) {
	reason := "hold expired"
	won, err := s.repos.Bookings.UpdateStatus(ctx, booking.ID, models.BookingPending, models.BookingCancelled, &reason)
	if err != nil {
		return false, fmt.Errorf("failed to expire booking: %w", err)
	}
	if !won {
		return false, nil
	}

	s.releaseSeats(ctx, booking, false)
	metrics.BookingsFinalized.WithLabelValues("expired").Inc()
	s.publishBooking(booking, models.SubjectBookingCancelled)
	return true, nil
}

// GetByID returns the booking when the caller owns it.
func (s *BookingService) GetByID(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, bileterr.ErrForbidden
	}
	return booking, nil
}

// ListByUser returns the caller's bookings, newest first.
func (s *BookingService) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	return s.repos.Bookings.ListByUser(ctx, userID)
}

func (s *BookingService) validateToken(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.QueueToken, error) {
	token, err := s.repos.Tokens.GetByToken(ctx, req.QueueToken)
	if err != nil {
		if bileterr.Is(err, bileterr.ErrNotFound) {
			return nil, bileterr.ErrTokenInvalid
		}
		return nil, err
	}
	if token.UserID != userID || token.ShowingID != req.ShowingID {
		return nil, bileterr.ErrTokenInvalid
	}
	if token.Status != models.TokenActive {
		return nil, bileterr.ErrTokenInvalid
	}
	now := time.Now()
	if now.After(token.ExpiresAt) ||
		(token.HoldExpiresAt != nil && now.After(*token.HoldExpiresAt)) {
		return nil, bileterr.ErrTokenInvalid
	}
	return token, nil
}

// resolveSeats maps the selections onto ledger rows, rejecting duplicates
// and unknown addresses up front.
func (s *BookingService) resolveSeats(ctx context.Context, req *models.CreateBookingRequest) ([]*models.Seat, error) {
	seen := make(map[int64]bool, len(req.Seats))
	seats := make([]*models.Seat, 0, len(req.Seats))

	for _, sel := range req.Seats {
		seat, err := s.repos.Seats.GetBySelection(ctx, req.ShowingID, sel.Zone, sel.Row, sel.Number)
		if err != nil {
			return nil, err
		}
		if seen[seat.ID] {
			return nil, fmt.Errorf("%w: duplicate seat %s-%d-%d",
				bileterr.ErrSeatUnavailable, sel.Zone, sel.Row, sel.Number)
		}
		seen[seat.ID] = true
		if seat.Status != models.SeatAvailable {
			return nil, bileterr.ErrSeatUnavailable
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

// lockAll takes the optimistic lock on every seat. On a lost race the seat
// is re-read: still AVAILABLE means a stale version, retry; anything else
// means the seat is gone. Returns the locked seats so callers can roll back.
func (s *BookingService) lockAll(ctx context.Context, seats []*models.Seat) ([]*models.Seat, error) {
	locked := make([]*models.Seat, 0, len(seats))

	for _, seat := range seats {
		retries := s.cfg.Queue.ConflictRetries
		for {
			won, err := s.repos.Seats.Lock(ctx, seat.ID, seat.Version)
			if err != nil {
				return locked, fmt.Errorf("failed to lock seat %d: %w", seat.ID, err)
			}
			if won {
				locked = append(locked, seat)
				break
			}

			metrics.SeatLockConflicts.Inc()
			fresh, err := s.repos.Seats.GetBySelection(ctx, seat.ShowingID, seat.Zone, seat.Row, seat.Number)
			if err != nil {
				return locked, err
			}
			if fresh.Status != models.SeatAvailable {
				return locked, bileterr.ErrSeatUnavailable
			}
			if retries == 0 {
				return locked, bileterr.ErrConflict
			}
			retries--
			seat.Version = fresh.Version
		}
	}
	return locked, nil
}

func (s *BookingService) unlockSeats(ctx context.Context, seats []*models.Seat) {
	for _, seat := range seats {
		if won, err := s.repos.Seats.Unlock(ctx, seat.ID); err != nil || !won {
			logger.Get().Error("Failed to unlock seat during rollback",
				"seat_id", seat.ID, "error", err)
		}
	}
}

// releaseSeats returns a booking's seats to AVAILABLE and restores the
// counter. sold selects the SOLD path of a confirmed booking.
func (s *BookingService) releaseSeats(ctx context.Context, booking *models.Booking, sold bool) {
	released := 0
	for _, bs := range booking.Seats {
		var won bool
		var err error
		if sold {
			won, err = s.repos.Seats.ReleaseSold(ctx, bs.SeatID)
		} else {
			won, err = s.repos.Seats.Unlock(ctx, bs.SeatID)
		}
		if err != nil || !won {
			logger.Get().Error("Failed to release booking seat",
				"booking_id", booking.ID, "seat_id", bs.SeatID, "error", err)
			continue
		}
		released++
	}

	if released > 0 {
		if ok, err := s.repos.Showings.AdjustAvailableSeats(ctx, booking.ShowingID, released); err != nil || !ok {
			logger.Get().Error("Failed to restore seat counter",
				"showing_id", booking.ShowingID, "released", released, "error", err)
		}
	}
}

func (s *BookingService) publishBooking(booking *models.Booking, subject string) {
	event := models.BookingEvent{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		ShowingID: booking.ShowingID,
		Status:    string(booking.Status),
		Timestamp: time.Now(),
	}
	if err := s.nats.Publish(subject, event); err != nil {
		logger.Get().Error("Failed to publish booking event",
			"subject", subject, "booking_id", booking.ID, "error", err)
	}
}

package repository

import (
	"context"
	"database/sql"

	"time"

	"bilet/internal/database"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

type bookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bookings (number, user_id, showing_id, status, total_price, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		booking.Number, booking.UserID, booking.ShowingID,
		booking.Status, booking.TotalPrice, booking.ExpiresAt).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return err
	}

	seatQuery := `
		INSERT INTO booking_seats (booking_id, seat_id, zone, row_number, seat_number, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i := range booking.Seats {
		booking.Seats[i].BookingID = booking.ID
		bs := booking.Seats[i]
		if _, err := tx.ExecContext(ctx, seatQuery,
			bs.BookingID, bs.SeatID, bs.Zone, bs.Row, bs.Number, bs.Price); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := `
		SELECT id, number, user_id, showing_id, status, total_price, expires_at,
		       cancel_reason, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE id = $1`

	var b models.Booking
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Number, &b.UserID, &b.ShowingID, &b.Status, &b.TotalPrice,
		&b.ExpiresAt, &b.CancelReason, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, bileterr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	seats, err := r.loadSeats(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Seats = seats
	return &b, nil
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `
		SELECT id, number, user_id, showing_id, status, total_price, expires_at,
		       cancel_reason, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC`

	bookings, err := r.queryBookings(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		seats, err := r.loadSeats(ctx, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].Seats = seats
	}
	return bookings, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id int64, from, to models.BookingStatus, reason *string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3,
		    cancel_reason = COALESCE($4, cancel_reason),
		    cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN NOW() ELSE cancelled_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to, reason)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *bookingRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]models.Booking, error) {
	query := `
		SELECT id, number, user_id, showing_id, status, total_price, expires_at,
		       cancel_reason, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE status = 'PENDING' AND expires_at < $1`

	bookings, err := r.queryBookings(ctx, query, now)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		seats, err := r.loadSeats(ctx, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].Seats = seats
	}
	return bookings, nil
}

func (r *bookingRepository) CountPendingByShowing(ctx context.Context, showingID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE showing_id = $1 AND status = 'PENDING'`,
		showingID).Scan(&count)
	return count, err
}

func (r *bookingRepository) loadSeats(ctx context.Context, bookingID int64) ([]models.BookingSeat, error) {
	query := `
		SELECT booking_id, seat_id, zone, row_number, seat_number, price
		FROM booking_seats
		WHERE booking_id = $1
		ORDER BY zone, row_number, seat_number`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []models.BookingSeat
	for rows.Next() {
		var bs models.BookingSeat
		if err := rows.Scan(&bs.BookingID, &bs.SeatID, &bs.Zone, &bs.Row, &bs.Number, &bs.Price); err != nil {
			return nil, err
		}
		seats = append(seats, bs)
	}
	return seats, rows.Err()
}

func (r *bookingRepository) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.Number, &b.UserID, &b.ShowingID, &b.Status,
			&b.TotalPrice, &b.ExpiresAt, &b.CancelReason, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

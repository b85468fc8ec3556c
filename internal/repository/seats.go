package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bilet/internal/database"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

type seatRepository struct {
	db *database.DB
}

func NewSeatRepository(db *database.DB) SeatRepository {
	return &seatRepository{db: db}
}

func (r *seatRepository) GetBySelection(ctx context.Context, showingID int64, zone string, row, number int) (*models.Seat, error) {
	query := `
		SELECT id, showing_id, zone, row_number, seat_number, grade, price, status, version
		FROM seats
		WHERE showing_id = $1 AND zone = $2 AND row_number = $3 AND seat_number = $4`

	var s models.Seat
	err := r.db.QueryRowContext(ctx, query, showingID, zone, row, number).Scan(
		&s.ID, &s.ShowingID, &s.Zone, &s.Row, &s.Number,
		&s.Grade, &s.Price, &s.Status, &s.Version)
	if err == sql.ErrNoRows {
		return nil, bileterr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *seatRepository) ListByShowing(ctx context.Context, showingID int64, page, pageSize int, zone *string, status *models.SeatStatus) ([]models.Seat, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	query := `
		SELECT id, showing_id, zone, row_number, seat_number, grade, price, status, version
		FROM seats
		WHERE showing_id = $1`
	args := []interface{}{showingID}
	argIndex := 2

	if zone != nil {
		query += fmt.Sprintf(" AND zone = $%d", argIndex)
		args = append(args, *zone)
		argIndex++
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY zone, row_number, seat_number LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []models.Seat
	for rows.Next() {
		var s models.Seat
		if err := rows.Scan(&s.ID, &s.ShowingID, &s.Zone, &s.Row, &s.Number,
			&s.Grade, &s.Price, &s.Status, &s.Version); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// Lock is the optimistic CAS: it wins only if the seat is still AVAILABLE
// at the observed version. RowsAffected decides the race.
func (r *seatRepository) Lock(ctx context.Context, seatID, version int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'LOCKED', version = version + 1
		WHERE id = $1 AND status = 'AVAILABLE' AND version = $2`

	return r.execCAS(ctx, query, seatID, version)
}

func (r *seatRepository) Unlock(ctx context.Context, seatID int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'AVAILABLE', version = version + 1
		WHERE id = $1 AND status = 'LOCKED'`

	return r.execCAS(ctx, query, seatID)
}

func (r *seatRepository) MarkSold(ctx context.Context, seatID int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'SOLD', version = version + 1
		WHERE id = $1 AND status = 'LOCKED'`

	return r.execCAS(ctx, query, seatID)
}

func (r *seatRepository) SellAvailable(ctx context.Context, seatID int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'SOLD', version = version + 1
		WHERE id = $1 AND status = 'AVAILABLE'`

	return r.execCAS(ctx, query, seatID)
}

func (r *seatRepository) ReleaseSold(ctx context.Context, seatID int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'AVAILABLE', version = version + 1
		WHERE id = $1 AND status = 'SOLD'`

	return r.execCAS(ctx, query, seatID)
}

func (r *seatRepository) execCAS(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

package repository

import (
	"context"
	"database/sql"

	"bilet/internal/database"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

type showingRepository struct {
	db *database.DB
}

func NewShowingRepository(db *database.DB) ShowingRepository {
	return &showingRepository{db: db}
}

func (r *showingRepository) Create(ctx context.Context, showing *models.Showing, zones []models.ZonePlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	totalSeats := 0
	for _, z := range zones {
		totalSeats += z.Rows * z.SeatsPerRow
	}
	showing.TotalSeats = totalSeats
	showing.AvailableSeats = totalSeats

	query := `
		INSERT INTO showings (title, starts_at, admission_limit, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, query,
		showing.Title, showing.StartsAt, showing.AdmissionLimit, totalSeats).
		Scan(&showing.ID, &showing.CreatedAt)
	if err != nil {
		return err
	}

	seatQuery := `
		INSERT INTO seats (showing_id, zone, row_number, seat_number, grade, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, z := range zones {
		for row := 1; row <= z.Rows; row++ {
			for num := 1; num <= z.SeatsPerRow; num++ {
				if _, err := tx.ExecContext(ctx, seatQuery,
					showing.ID, z.Zone, row, num, z.Grade, z.Price); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

func (r *showingRepository) GetByID(ctx context.Context, id int64) (*models.Showing, error) {
	query := `
		SELECT id, title, starts_at, admission_limit, total_seats, available_seats, version, created_at
		FROM showings
		WHERE id = $1`

	var s models.Showing
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Title, &s.StartsAt, &s.AdmissionLimit,
		&s.TotalSeats, &s.AvailableSeats, &s.Version, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, bileterr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *showingRepository) List(ctx context.Context, page, pageSize int) ([]models.Showing, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := `
		SELECT id, title, starts_at, admission_limit, total_seats, available_seats, version, created_at
		FROM showings
		ORDER BY starts_at
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var showings []models.Showing
	for rows.Next() {
		var s models.Showing
		if err := rows.Scan(&s.ID, &s.Title, &s.StartsAt, &s.AdmissionLimit,
			&s.TotalSeats, &s.AvailableSeats, &s.Version, &s.CreatedAt); err != nil {
			return nil, err
		}
		showings = append(showings, s)
	}
	return showings, rows.Err()
}

// AdjustAvailableSeats applies the delta in a single guarded UPDATE so
// concurrent adjustments never drive the counter out of range.
func (r *showingRepository) AdjustAvailableSeats(ctx context.Context, id int64, delta int) (bool, error) {
	query := `
		UPDATE showings
		SET available_seats = available_seats + $2, version = version + 1
		WHERE id = $1
		  AND available_seats + $2 >= 0
		  AND available_seats + $2 <= total_seats`

	result, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bilet/internal/database"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

type tokenRepository struct {
	db *database.DB
}

func NewTokenRepository(db *database.DB) TokenRepository {
	return &tokenRepository{db: db}
}

const tokenColumns = `token, user_id, showing_id, status, issued_at, activated_at, hold_expires_at, expires_at, updated_at`

func scanToken(row interface{ Scan(...interface{}) error }) (*models.QueueToken, error) {
	var t models.QueueToken
	err := row.Scan(&t.Token, &t.UserID, &t.ShowingID, &t.Status,
		&t.IssuedAt, &t.ActivatedAt, &t.HoldExpiresAt, &t.ExpiresAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, bileterr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) Create(ctx context.Context, token *models.QueueToken) error {
	query := `
		INSERT INTO queue_tokens (token, user_id, showing_id, status, issued_at, activated_at, hold_expires_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.UserID, token.ShowingID, token.Status,
		token.IssuedAt, token.ActivatedAt, token.HoldExpiresAt, token.ExpiresAt).Scan(&token.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// The partial unique index allows one live token per user and showing.
		return fmt.Errorf("%w: live token exists for user %d and showing %d",
			bileterr.ErrConflict, token.UserID, token.ShowingID)
	}
	return err
}

func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*models.QueueToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM queue_tokens WHERE token = $1`
	return scanToken(r.db.QueryRowContext(ctx, query, token))
}

func (r *tokenRepository) GetLive(ctx context.Context, userID, showingID int64) (*models.QueueToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM queue_tokens
		WHERE user_id = $1 AND showing_id = $2 AND status IN ('WAITING', 'ACTIVE')`

	return scanToken(r.db.QueryRowContext(ctx, query, userID, showingID))
}

// UpdateStatus applies the state machine transition only while the token is
// still in the from status, so each transition has exactly one winner.
func (r *tokenRepository) UpdateStatus(ctx context.Context, token string, from, to models.TokenStatus, holdExpiresAt *time.Time) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	if to == models.TokenActive {
		query := `
			UPDATE queue_tokens
			SET status = $3, activated_at = NOW(), hold_expires_at = $4, updated_at = NOW()
			WHERE token = $1 AND status = $2`
		result, err = r.db.ExecContext(ctx, query, token, from, to, holdExpiresAt)
	} else {
		query := `
			UPDATE queue_tokens
			SET status = $3, updated_at = NOW()
			WHERE token = $1 AND status = $2`
		result, err = r.db.ExecContext(ctx, query, token, from, to)
	}
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *tokenRepository) WaitingPosition(ctx context.Context, tok *models.QueueToken) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_tokens
		WHERE showing_id = $1 AND status = 'WAITING'
		  AND (issued_at < $2 OR (issued_at = $2 AND token < $3))`

	var ahead int
	err := r.db.QueryRowContext(ctx, query, tok.ShowingID, tok.IssuedAt, tok.Token).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (r *tokenRepository) ListWaiting(ctx context.Context, showingID int64, limit int) ([]models.QueueToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM queue_tokens
		WHERE showing_id = $1 AND status = 'WAITING'
		ORDER BY issued_at, token`

	if limit > 0 {
		return r.queryTokens(ctx, query+` LIMIT $2`, showingID, limit)
	}
	return r.queryTokens(ctx, query, showingID)
}

func (r *tokenRepository) ListWaitingShowings(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT showing_id FROM queue_tokens WHERE status = 'WAITING'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *tokenRepository) ListActive(ctx context.Context) ([]models.QueueToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM queue_tokens WHERE status = 'ACTIVE'`
	return r.queryTokens(ctx, query)
}

func (r *tokenRepository) ListHoldLapsed(ctx context.Context, now time.Time) ([]models.QueueToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM queue_tokens
		WHERE status = 'ACTIVE' AND hold_expires_at IS NOT NULL AND hold_expires_at < $1`

	return r.queryTokens(ctx, query, now)
}

func (r *tokenRepository) ListDeadlineLapsed(ctx context.Context, now time.Time) ([]models.QueueToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM queue_tokens
		WHERE status IN ('WAITING', 'ACTIVE') AND expires_at < $1`

	return r.queryTokens(ctx, query, now)
}

func (r *tokenRepository) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM queue_tokens
		WHERE status IN ('USED', 'EXPIRED', 'CANCELLED', 'SOLD_OUT') AND updated_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *tokenRepository) queryTokens(ctx context.Context, query string, args ...interface{}) ([]models.QueueToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.QueueToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

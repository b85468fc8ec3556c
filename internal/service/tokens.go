package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"bilet/internal/cache"
	"bilet/internal/config"
	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/messaging"
	"bilet/internal/metrics"
	"bilet/internal/models"
	"bilet/internal/repository"
)

// TokenService owns the queue token state machine. Every transition is a
// compare-and-set on the stored status, so concurrent sweeps, releases and
// bookings resolve to exactly one winner; the admission slot is released
// only by the transition winner.
type TokenService struct {
	repos *repository.Repositories
	slots cache.SlotStore
	nats  messaging.Publisher
	cfg   *config.Config
}

func NewTokenService(repos *repository.Repositories, slots cache.SlotStore, nats messaging.Publisher, cfg *config.Config) *TokenService {
	return &TokenService{repos: repos, slots: slots, nats: nats, cfg: cfg}
}

// effectiveCapacity applies the overbooking ratio to the showing's admission
// limit, falling back to the configured base capacity.
func effectiveCapacity(cfg *config.Config, showing *models.Showing) int {
	base := showing.AdmissionLimit
	if base <= 0 {
		base = cfg.Queue.BaseCapacity
	}
	capacity := int(float64(base) * cfg.Queue.OverbookingRatio)
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

// newTokenString returns a 64 character hex token.
func newTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue creates a new token in the given status. Callers must have acquired
// an admission slot before issuing an ACTIVE token.
func (s *TokenService) Issue(ctx context.Context, userID, showingID int64, status models.TokenStatus) (*models.QueueToken, error) {
	tokenStr, err := newTokenString()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	token := &models.QueueToken{
		Token:     tokenStr,
		UserID:    userID,
		ShowingID: showingID,
		Status:    status,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.Queue.TokenValidity),
	}
	if status == models.TokenActive {
		token.ActivatedAt = &now
		hold := now.Add(s.cfg.Queue.ActivationHold)
		token.HoldExpiresAt = &hold
	}

	if err := s.repos.Tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create queue token: %w", err)
	}

	if status == models.TokenActive {
		s.publishToken(token, models.SubjectTokenActivated)
	}
	return token, nil
}

// Status reports the token state for polling clients.
func (s *TokenService) Status(ctx context.Context, tokenStr string, userID int64) (*models.TokenStatusResponse, error) {
	token, err := s.repos.Tokens.GetByToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if token.UserID != userID {
		return nil, bileterr.ErrForbidden
	}

	resp := &models.TokenStatusResponse{
		Status:             string(token.Status),
		IsActiveForBooking: token.Status == models.TokenActive,
		HoldExpiresAt:      token.HoldExpiresAt,
	}

	if token.Status == models.TokenWaiting {
		position, err := s.repos.Tokens.WaitingPosition(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to compute queue position: %w", err)
		}
		resp.PositionInQueue = position
		resp.EstimatedWaitSeconds = s.estimateWait(position)
	}
	return resp, nil
}

// Cancel voluntarily ends a token. Cancelling an already terminal token is
// a no-op.
func (s *TokenService) Cancel(ctx context.Context, tokenStr string, userID int64) error {
	token, err := s.repos.Tokens.GetByToken(ctx, tokenStr)
	if err != nil {
		return err
	}
	if token.UserID != userID {
		return bileterr.ErrForbidden
	}
	if token.Status.Terminal() {
		return nil
	}

	_, err = s.finish(ctx, token, models.TokenCancelled, models.SubjectTokenExpired)
	return err
}

// MarkUsed consumes an ACTIVE token when a booking is created. The admission
// slot is released because the session has done its work.
func (s *TokenService) MarkUsed(ctx context.Context, token *models.QueueToken) (bool, error) {
	return s.finish(ctx, token, models.TokenUsed, models.SubjectTokenExpired)
}

// Expire transitions a live token to EXPIRED. cause labels the metric.
func (s *TokenService) Expire(ctx context.Context, token *models.QueueToken, cause string) (bool, error) {
	won, err := s.finish(ctx, token, models.TokenExpired, models.SubjectTokenExpired)
	if won {
		metrics.TokensExpired.WithLabelValues(cause).Inc()
	}
	return won, err
}

// MarkSoldOut transitions a WAITING token to SOLD_OUT.
func (s *TokenService) MarkSoldOut(ctx context.Context, token *models.QueueToken) (bool, error) {
	if token.Status != models.TokenWaiting {
		return false, nil
	}
	won, err := s.repos.Tokens.UpdateStatus(ctx, token.Token, models.TokenWaiting, models.TokenSoldOut, nil)
	if err != nil {
		return false, fmt.Errorf("failed to mark token sold out: %w", err)
	}
	if won {
		token.Status = models.TokenSoldOut
		s.publishToken(token, models.SubjectTokenExpired)
		metrics.TokensExpired.WithLabelValues("sold_out").Inc()
	}
	return won, nil
}

// finish applies a terminal transition. Exactly the CAS winner releases the
// admission slot and the heartbeat of a previously ACTIVE token, then hands
// the freed slot to the next waiting caller.
func (s *TokenService) finish(ctx context.Context, token *models.QueueToken, to models.TokenStatus, subject string) (bool, error) {
	from := token.Status
	won, err := s.repos.Tokens.UpdateStatus(ctx, token.Token, from, to, nil)
	if err != nil {
		return false, fmt.Errorf("failed to transition token: %w", err)
	}
	if !won {
		return false, nil
	}

	if from == models.TokenActive {
		s.releaseSession(ctx, token.ShowingID, token.UserID)
		if _, err := s.TryAdmitWaiting(ctx, token.ShowingID); err != nil {
			logger.Get().Warn("Re-admission after token release failed",
				"showing_id", token.ShowingID, "error", err)
		}
	}

	token.Status = to
	s.publishToken(token, subject)
	return true, nil
}

// releaseSession frees the slot and heartbeat of an admitted session.
func (s *TokenService) releaseSession(ctx context.Context, showingID, userID int64) {
	if err := s.slots.ReleaseSlot(ctx, showingID); err != nil {
		logger.Get().Error("Failed to release admission slot",
			"showing_id", showingID, "error", err)
	}
	if err := s.slots.DeleteHeartbeat(ctx, showingID, userID); err != nil {
		logger.Get().Error("Failed to delete heartbeat",
			"showing_id", showingID, "user_id", userID, "error", err)
	}
	s.reportActive(ctx, showingID)
}

// TryAdmitWaiting activates WAITING tokens in issue order while admission
// slots are free. A lost activation CAS returns its slot and moves on.
func (s *TokenService) TryAdmitWaiting(ctx context.Context, showingID int64) (int, error) {
	showing, err := s.repos.Showings.GetByID(ctx, showingID)
	if err != nil {
		return 0, err
	}
	capacity := effectiveCapacity(s.cfg, showing)

	waiting, err := s.repos.Tokens.ListWaiting(ctx, showingID, capacity)
	if err != nil {
		return 0, fmt.Errorf("failed to list waiting tokens: %w", err)
	}

	now := time.Now()
	admitted := 0
	for i := range waiting {
		token := &waiting[i]

		// A token past its overall deadline belongs to the expiry sweep.
		if token.ExpiresAt.Before(now) {
			continue
		}

		acquired, err := s.slots.AcquireSlot(ctx, showingID, capacity)
		if err != nil {
			return admitted, err
		}
		if !acquired {
			break
		}

		hold := time.Now().Add(s.cfg.Queue.ActivationHold)
		won, err := s.repos.Tokens.UpdateStatus(ctx, token.Token, models.TokenWaiting, models.TokenActive, &hold)
		if err != nil || !won {
			// Token moved concurrently; return the slot we took for it.
			if relErr := s.slots.ReleaseSlot(ctx, showingID); relErr != nil {
				logger.Get().Error("Failed to return admission slot",
					"showing_id", showingID, "error", relErr)
			}
			if err != nil {
				return admitted, fmt.Errorf("failed to activate token: %w", err)
			}
			continue
		}

		token.Status = models.TokenActive
		token.HoldExpiresAt = &hold
		if err := s.slots.SetHeartbeat(ctx, showingID, token.UserID, s.cfg.Queue.HeartbeatTTL); err != nil {
			logger.Get().Error("Failed to seed heartbeat",
				"showing_id", showingID, "user_id", token.UserID, "error", err)
		}
		s.publishToken(token, models.SubjectTokenActivated)
		admitted++
	}

	if admitted > 0 {
		s.reportActive(ctx, showingID)
	}
	return admitted, nil
}

func (s *TokenService) estimateWait(position int) int64 {
	wait := int64(position) * int64(s.cfg.Queue.ServiceTimePerUser/time.Second)
	if minimum := int64(s.cfg.Queue.ServiceTimePerUser / time.Second); wait < minimum {
		wait = minimum
	}
	return wait
}

func (s *TokenService) reportActive(ctx context.Context, showingID int64) {
	if n, err := s.slots.ActiveSlots(ctx, showingID); err == nil {
		metrics.ActiveSessions.WithLabelValues(fmt.Sprintf("%d", showingID)).Set(float64(n))
	}
}

func (s *TokenService) publishToken(token *models.QueueToken, subject string) {
	event := models.TokenEvent{
		Token:     token.Token,
		UserID:    token.UserID,
		ShowingID: token.ShowingID,
		Status:    string(token.Status),
		Timestamp: time.Now(),
	}
	if err := s.nats.Publish(subject, event); err != nil {
		logger.Get().Error("Failed to publish token event",
			"subject", subject, "token", token.Token, "error", err)
	}
}

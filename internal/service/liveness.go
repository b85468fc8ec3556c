package service

import (
	"context"

	"bilet/internal/cache"
	"bilet/internal/config"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
	"bilet/internal/repository"
)

// LivenessService tracks whether admitted sessions are still there.
// A session stops heartbeating, its slot comes back via the sweep.
type LivenessService struct {
	repos  *repository.Repositories
	slots  cache.SlotStore
	tokens *TokenService
	cfg    *config.Config
}

func NewLivenessService(repos *repository.Repositories, slots cache.SlotStore, tokens *TokenService, cfg *config.Config) *LivenessService {
	return &LivenessService{repos: repos, slots: slots, tokens: tokens, cfg: cfg}
}

// Heartbeat refreshes the caller's liveness window. Any live token may
// heartbeat; only admitted sessions have a liveness window to refresh, so
// a WAITING caller's heartbeat is acknowledged without effect.
func (s *LivenessService) Heartbeat(ctx context.Context, userID, showingID int64) error {
	token, err := s.repos.Tokens.GetLive(ctx, userID, showingID)
	if err != nil {
		if bileterr.Is(err, bileterr.ErrNotFound) {
			return bileterr.ErrTokenInvalid
		}
		return err
	}
	if token.Status != models.TokenActive {
		return nil
	}

	return s.slots.SetHeartbeat(ctx, showingID, userID, s.cfg.Queue.HeartbeatTTL)
}

// Release voluntarily ends the caller's admission or queue membership.
// Releasing an already ended session succeeds without effect.
func (s *LivenessService) Release(ctx context.Context, userID, showingID int64) error {
	token, err := s.repos.Tokens.GetLive(ctx, userID, showingID)
	if err != nil {
		if bileterr.Is(err, bileterr.ErrNotFound) {
			return nil
		}
		return err
	}

	// finish hands the freed slot to the next waiting caller.
	_, err = s.tokens.finish(ctx, token, models.TokenCancelled, models.SubjectAdmissionReleased)
	return err
}

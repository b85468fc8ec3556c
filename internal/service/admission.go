package service

import (
	"context"
	"fmt"

	"bilet/internal/cache"
	"bilet/internal/config"
	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/metrics"
	"bilet/internal/models"
	"bilet/internal/repository"
)

// AdmissionService decides whether a caller may enter seat selection for a
// showing or must wait in the queue. The decision is a single atomic
// increment against the shared slot counter; there is no read-then-write
// window for concurrent callers to slip through.
type AdmissionService struct {
	repos  *repository.Repositories
	slots  cache.SlotStore
	tokens *TokenService
	cfg    *config.Config
}

func NewAdmissionService(repos *repository.Repositories, slots cache.SlotStore, tokens *TokenService, cfg *config.Config) *AdmissionService {
	return &AdmissionService{repos: repos, slots: slots, tokens: tokens, cfg: cfg}
}

// Check admits the caller immediately when capacity allows, otherwise
// issues or reports a WAITING token. When the slot store is unreachable the
// caller is queued rather than admitted.
func (s *AdmissionService) Check(ctx context.Context, userID, showingID int64) (*models.AdmissionCheckResponse, error) {
	showing, err := s.repos.Showings.GetByID(ctx, showingID)
	if err != nil {
		return nil, err
	}
	capacity := effectiveCapacity(s.cfg, showing)

	// An existing live token is reported, never reissued.
	if existing, err := s.repos.Tokens.GetLive(ctx, userID, showingID); err == nil {
		if existing.Status == models.TokenWaiting {
			// Capacity may have freed since the token was queued.
			if _, err := s.tokens.TryAdmitWaiting(ctx, showingID); err != nil {
				logger.Get().Warn("Re-admission pass failed",
					"showing_id", showingID, "error", err)
			}
			if refreshed, err := s.repos.Tokens.GetByToken(ctx, existing.Token); err == nil {
				existing = refreshed
			}
		}
		return s.respond(ctx, existing)
	} else if !bileterr.Is(err, bileterr.ErrNotFound) {
		return nil, err
	}

	acquired, err := s.slots.AcquireSlot(ctx, showingID, capacity)
	if err != nil {
		// Fail safe: never admit on a broken counter.
		logger.Get().Error("Slot store unavailable, queueing caller",
			"showing_id", showingID, "user_id", userID, "error", err)
		metrics.AdmissionDecisions.WithLabelValues("failsafe").Inc()
		return s.queue(ctx, userID, showingID)
	}

	if !acquired {
		metrics.AdmissionDecisions.WithLabelValues("queued").Inc()
		return s.queue(ctx, userID, showingID)
	}

	token, err := s.tokens.Issue(ctx, userID, showingID, models.TokenActive)
	if err != nil {
		// Likely lost a duplicate-check race with another request of the
		// same user. Return the slot and report the surviving token.
		if relErr := s.slots.ReleaseSlot(ctx, showingID); relErr != nil {
			logger.Get().Error("Failed to return admission slot",
				"showing_id", showingID, "error", relErr)
		}
		if existing, getErr := s.repos.Tokens.GetLive(ctx, userID, showingID); getErr == nil {
			return s.respond(ctx, existing)
		}
		return nil, fmt.Errorf("failed to issue active token: %w", err)
	}

	if err := s.slots.SetHeartbeat(ctx, showingID, userID, s.cfg.Queue.HeartbeatTTL); err != nil {
		logger.Get().Error("Failed to seed heartbeat",
			"showing_id", showingID, "user_id", userID, "error", err)
	}

	metrics.AdmissionDecisions.WithLabelValues("admitted").Inc()
	s.tokens.reportActive(ctx, showingID)

	return &models.AdmissionCheckResponse{
		RequiresQueue: false,
		Token:         token.Token,
		Status:        string(token.Status),
	}, nil
}

func (s *AdmissionService) queue(ctx context.Context, userID, showingID int64) (*models.AdmissionCheckResponse, error) {
	token, err := s.tokens.Issue(ctx, userID, showingID, models.TokenWaiting)
	if err != nil {
		if existing, getErr := s.repos.Tokens.GetLive(ctx, userID, showingID); getErr == nil {
			return s.respond(ctx, existing)
		}
		return nil, fmt.Errorf("failed to issue waiting token: %w", err)
	}
	return s.respond(ctx, token)
}

func (s *AdmissionService) respond(ctx context.Context, token *models.QueueToken) (*models.AdmissionCheckResponse, error) {
	resp := &models.AdmissionCheckResponse{
		RequiresQueue: token.Status != models.TokenActive,
		Token:         token.Token,
		Status:        string(token.Status),
	}
	if token.Status == models.TokenWaiting {
		position, err := s.repos.Tokens.WaitingPosition(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to compute queue position: %w", err)
		}
		resp.PositionInQueue = position
		resp.EstimatedWaitSeconds = s.tokens.estimateWait(position)
	}
	return resp, nil
}

package service

import (
	"context"
	"time"

	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/logger"
	"bilet/internal/metrics"
	"bilet/internal/repository"
)

// SweeperService is the periodic reclaim job: it expires lapsed tokens and
// holds, reaps sessions whose heartbeat went silent, re-admits waiting
// callers in order, marks hopeless queues sold out and purges old terminal
// tokens. Every transition goes through the same CAS helpers the live
// paths use, so a sweep racing a request still resolves to one winner.
type SweeperService struct {
	repos    *repository.Repositories
	slots    cache.SlotStore
	tokens   *TokenService
	bookings *BookingService
	cfg      *config.Config

	done chan struct{}
}

func NewSweeperService(repos *repository.Repositories, slots cache.SlotStore, tokens *TokenService, bookings *BookingService, cfg *config.Config) *SweeperService {
	return &SweeperService{
		repos:    repos,
		slots:    slots,
		tokens:   tokens,
		bookings: bookings,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends.
func (s *SweeperService) Start(ctx context.Context) {
	log := logger.Get()
	log.Info("Starting sweeper", "interval", s.cfg.Queue.SweepInterval)

	ticker := time.NewTicker(s.cfg.Queue.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Sweeper stopped by context")
			return
		case <-s.done:
			log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Error("Sweep run failed", "error", err)
			}
		}
	}
}

// Stop terminates the sweep loop.
func (s *SweeperService) Stop() {
	close(s.done)
}

// SweepOnce runs one full reclaim pass.
func (s *SweeperService) SweepOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	s.expireLapsedTokens(ctx)
	s.reapSilentSessions(ctx)
	s.expireLapsedHolds(ctx)
	s.readmitAndDrain(ctx)
	s.purgeOldTokens(ctx)
	return nil
}

// expireLapsedTokens handles both the overall token deadline and the
// activation hold window.
func (s *SweeperService) expireLapsedTokens(ctx context.Context) {
	now := time.Now()
	log := logger.Get()

	lapsed, err := s.repos.Tokens.ListDeadlineLapsed(ctx, now)
	if err != nil {
		log.Error("Failed to list expired tokens", "error", err)
	}
	for i := range lapsed {
		if _, err := s.tokens.Expire(ctx, &lapsed[i], "deadline"); err != nil {
			log.Error("Failed to expire token", "token", lapsed[i].Token, "error", err)
		}
	}

	held, err := s.repos.Tokens.ListHoldLapsed(ctx, now)
	if err != nil {
		log.Error("Failed to list hold-lapsed tokens", "error", err)
		return
	}
	for i := range held {
		if _, err := s.tokens.Expire(ctx, &held[i], "hold"); err != nil {
			log.Error("Failed to expire held token", "token", held[i].Token, "error", err)
		}
	}
}

// reapSilentSessions expires ACTIVE tokens whose heartbeat is gone.
func (s *SweeperService) reapSilentSessions(ctx context.Context) {
	log := logger.Get()

	active, err := s.repos.Tokens.ListActive(ctx)
	if err != nil {
		log.Error("Failed to list active tokens", "error", err)
		return
	}

	for i := range active {
		token := &active[i]
		alive, err := s.slots.HeartbeatAlive(ctx, token.ShowingID, token.UserID)
		if err != nil {
			// Do not reap on a broken store; the session may be fine.
			log.Error("Failed to check heartbeat", "token", token.Token, "error", err)
			continue
		}
		if alive {
			continue
		}
		if won, err := s.tokens.Expire(ctx, token, "heartbeat"); err != nil {
			log.Error("Failed to expire silent session", "token", token.Token, "error", err)
		} else if won {
			log.Info("Reaped abandoned session",
				"showing_id", token.ShowingID, "user_id", token.UserID)
		}
	}
}

// expireLapsedHolds cancels PENDING bookings past their hold and returns
// their seats to inventory.
func (s *SweeperService) expireLapsedHolds(ctx context.Context) {
	log := logger.Get()

	expired, err := s.repos.Bookings.ListExpiredPending(ctx, time.Now())
	if err != nil {
		log.Error("Failed to list expired bookings", "error", err)
		return
	}

	for i := range expired {
		booking := &expired[i]
		if won, err := s.bookings.ExpireHold(ctx, booking); err != nil {
			log.Error("Failed to expire booking hold", "booking_id", booking.ID, "error", err)
		} else if won {
			log.Info("Expired booking hold",
				"booking_id", booking.ID, "showing_id", booking.ShowingID)
		}
	}
}

// readmitAndDrain moves waiting callers into freed slots and, when a
// showing can never free more seats, tells the rest of the queue it is over.
func (s *SweeperService) readmitAndDrain(ctx context.Context) {
	log := logger.Get()

	showingIDs, err := s.repos.Tokens.ListWaitingShowings(ctx)
	if err != nil {
		log.Error("Failed to list queued showings", "error", err)
		return
	}

	for _, showingID := range showingIDs {
		// Drain first so a hopeless queue is not admitted into freed slots.
		s.drainIfSoldOut(ctx, showingID)

		admitted, err := s.tokens.TryAdmitWaiting(ctx, showingID)
		if err != nil {
			log.Error("Re-admission failed", "showing_id", showingID, "error", err)
			continue
		}
		if admitted > 0 {
			log.Info("Admitted waiting callers", "showing_id", showingID, "count", admitted)
		}
	}
}

// drainIfSoldOut marks all WAITING tokens SOLD_OUT once the showing has no
// available seats and no pending holds that could still release them.
func (s *SweeperService) drainIfSoldOut(ctx context.Context, showingID int64) {
	log := logger.Get()

	showing, err := s.repos.Showings.GetByID(ctx, showingID)
	if err != nil {
		log.Error("Failed to load showing", "showing_id", showingID, "error", err)
		return
	}
	if showing.AvailableSeats > 0 {
		return
	}

	pending, err := s.repos.Bookings.CountPendingByShowing(ctx, showingID)
	if err != nil {
		log.Error("Failed to count pending bookings", "showing_id", showingID, "error", err)
		return
	}
	if pending > 0 {
		return
	}

	waiting, err := s.repos.Tokens.ListWaiting(ctx, showingID, 0)
	if err != nil {
		log.Error("Failed to list waiting tokens", "showing_id", showingID, "error", err)
		return
	}

	drained := 0
	for i := range waiting {
		if won, err := s.tokens.MarkSoldOut(ctx, &waiting[i]); err != nil {
			log.Error("Failed to drain waiting token", "token", waiting[i].Token, "error", err)
		} else if won {
			drained++
		}
	}
	if drained > 0 {
		log.Info("Drained sold out queue", "showing_id", showingID, "count", drained)
	}
}

// purgeOldTokens deletes terminal tokens past the audit retention window.
func (s *SweeperService) purgeOldTokens(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Queue.AuditRetention)
	purged, err := s.repos.Tokens.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		logger.Get().Error("Failed to purge terminal tokens", "error", err)
		return
	}
	if purged > 0 {
		logger.Get().Info("Purged terminal tokens", "count", purged)
	}
}

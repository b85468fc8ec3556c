package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilet/internal/config"
	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

func TestSweepExpiresLapsedBookingHolds(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.BookingHold = -time.Minute
	})
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1), seatSel(1, 2))

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	stored, err := f.repos.Bookings.GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "hold expired", *stored.CancelReason)

	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 2)))
	assert.Equal(t, showing.TotalSeats, f.availableSeats(t, showing.ID))
}

func TestSweepReapsSilentSessions(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	silent := f.user(t, 1)
	silentToken := f.admit(t, silent, showing.ID)

	waiting := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), waiting, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	// The admitted session goes dark.
	require.NoError(t, f.slots.DeleteHeartbeat(context.Background(), showing.ID, silent))

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	reaped, err := f.repos.Tokens.GetByToken(context.Background(), silentToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenExpired, reaped.Status)

	promoted, err := f.repos.Tokens.GetByToken(context.Background(), queued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, promoted.Status, "the freed slot goes to the waiting caller")

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestSweepKeepsHeartbeatingSessions(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	require.NoError(t, f.svcs.Liveness.Heartbeat(context.Background(), userID, showing.ID))
	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, stored.Status)
}

func TestSweepExpiresLapsedActivationHolds(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.ActivationHold = -time.Minute
	})
	showing := f.showing(t, 1, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenExpired, stored.Status)

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestSweepExpiresLapsedDeadlines(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.TokenValidity = -time.Minute
	})
	showing := f.showing(t, 1, 2, 5)

	admitted := f.user(t, 1)
	activeToken := f.admit(t, admitted, showing.ID)

	waiting := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), waiting, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	for _, tok := range []string{activeToken, queued.Token} {
		stored, err := f.repos.Tokens.GetByToken(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, models.TokenExpired, stored.Status)
	}

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "expiring an admitted session frees its slot")
}

func TestSweepDrainsSoldOutQueue(t *testing.T) {
	f := newFixture(t, nil)
	// One seat in total.
	showing := &models.Showing{
		Title:          "Single Seat",
		StartsAt:       time.Now().Add(24 * time.Hour),
		AdmissionLimit: 1,
	}
	zones := []models.ZonePlan{{Zone: "A", Rows: 1, SeatsPerRow: 1, Grade: "standard", Price: 5000}}
	require.NoError(t, f.repos.Showings.Create(context.Background(), showing, zones))

	buyer := f.user(t, 1)
	token := f.admit(t, buyer, showing.ID)

	hopeful := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), hopeful, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	straggler := f.user(t, 3)
	queuedLast, err := f.svcs.Admission.Check(context.Background(), straggler, showing.ID)
	require.NoError(t, err)
	require.True(t, queuedLast.RequiresQueue)

	// Booking consumes the buyer's session; the first hopeful inherits the
	// slot right away.
	booking := f.book(t, buyer, token, showing.ID, seatSel(1, 1))
	promoted, err := f.repos.Tokens.GetByToken(context.Background(), queued.Token)
	require.NoError(t, err)
	require.Equal(t, models.TokenActive, promoted.Status)

	_, err = f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	require.NoError(t, err)

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	drained, err := f.repos.Tokens.GetByToken(context.Background(), queuedLast.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenSoldOut, drained.Status,
		"nobody still waiting can buy a seat once the showing is sold out")

	admitted, err := f.repos.Tokens.GetByToken(context.Background(), queued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, admitted.Status, "admitted sessions are not drained")
}

func TestSweepDoesNotDrainWhilePendingHoldsRemain(t *testing.T) {
	f := newFixture(t, nil)
	showing := &models.Showing{
		Title:          "Single Seat",
		StartsAt:       time.Now().Add(24 * time.Hour),
		AdmissionLimit: 1,
	}
	zones := []models.ZonePlan{{Zone: "A", Rows: 1, SeatsPerRow: 1, Grade: "standard", Price: 5000}}
	require.NoError(t, f.repos.Showings.Create(context.Background(), showing, zones))

	buyer := f.user(t, 1)
	token := f.admit(t, buyer, showing.ID)

	hopeful := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), hopeful, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	straggler := f.user(t, 3)
	queuedLast, err := f.svcs.Admission.Check(context.Background(), straggler, showing.ID)
	require.NoError(t, err)
	require.True(t, queuedLast.RequiresQueue)

	// The only seat is held but not paid for; it may still come back.
	f.book(t, buyer, token, showing.ID, seatSel(1, 1))

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	held, err := f.repos.Tokens.GetByToken(context.Background(), queuedLast.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenWaiting, held.Status,
		"a pending hold may lapse, so the queue is not hopeless yet")
}

func TestSweepPurgesOldTerminalTokens(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.AuditRetention = -time.Minute
	})
	showing := f.showing(t, 3, 2, 5)

	ended := f.user(t, 1)
	endedToken := f.admit(t, ended, showing.ID)
	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), endedToken, ended))

	live := f.user(t, 2)
	liveToken := f.admit(t, live, showing.ID)

	require.NoError(t, f.svcs.Sweeper.SweepOnce(context.Background()))

	_, err := f.repos.Tokens.GetByToken(context.Background(), endedToken)
	assert.ErrorIs(t, err, bileterr.ErrNotFound)

	_, err = f.repos.Tokens.GetByToken(context.Background(), liveToken)
	assert.NoError(t, err, "live tokens are never purged")
}

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

func TestTokenStatusReportsQueuePosition(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.ServiceTimePerUser = 30 * time.Second
	})
	showing := f.showing(t, 1, 2, 5)

	first := f.user(t, 1)
	f.admit(t, first, showing.ID)

	second := f.user(t, 2)
	queued2, err := f.svcs.Admission.Check(context.Background(), second, showing.ID)
	require.NoError(t, err)
	require.True(t, queued2.RequiresQueue)

	third := f.user(t, 3)
	queued3, err := f.svcs.Admission.Check(context.Background(), third, showing.ID)
	require.NoError(t, err)
	require.True(t, queued3.RequiresQueue)

	status2, err := f.svcs.Tokens.Status(context.Background(), queued2.Token, second)
	require.NoError(t, err)
	assert.Equal(t, string(models.TokenWaiting), status2.Status)
	assert.False(t, status2.IsActiveForBooking)
	assert.Equal(t, 1, status2.PositionInQueue)
	assert.Equal(t, int64(30), status2.EstimatedWaitSeconds)

	status3, err := f.svcs.Tokens.Status(context.Background(), queued3.Token, third)
	require.NoError(t, err)
	assert.Equal(t, 2, status3.PositionInQueue)
	assert.Equal(t, int64(60), status3.EstimatedWaitSeconds)
}

func TestTokenStatusActiveForBooking(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	status, err := f.svcs.Tokens.Status(context.Background(), token, userID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TokenActive), status.Status)
	assert.True(t, status.IsActiveForBooking)
	assert.Zero(t, status.PositionInQueue)
	require.NotNil(t, status.HoldExpiresAt)
	assert.True(t, status.HoldExpiresAt.After(time.Now()))
}

func TestTokenStatusOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	owner := f.user(t, 1)
	other := f.user(t, 2)
	token := f.admit(t, owner, showing.ID)

	_, err := f.svcs.Tokens.Status(context.Background(), token, other)
	assert.ErrorIs(t, err, bileterr.ErrForbidden)
}

func TestTokenCancelReleasesSlot(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), token, userID))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenCancelled, stored.Status)

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "cancelling an admitted session must free its slot")
}

func TestTokenCancelIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), token, userID))
	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), token, userID))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenCancelled, stored.Status)

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "repeat cancel must not release the slot twice")
}

func TestTokenCancelOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	owner := f.user(t, 1)
	other := f.user(t, 2)
	token := f.admit(t, owner, showing.ID)

	err := f.svcs.Tokens.Cancel(context.Background(), token, other)
	assert.ErrorIs(t, err, bileterr.ErrForbidden)
}

func TestReleasePromotesNextWaiting(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	first := f.user(t, 1)
	f.admit(t, first, showing.ID)

	second := f.user(t, 2)
	queued2, err := f.svcs.Admission.Check(context.Background(), second, showing.ID)
	require.NoError(t, err)
	require.True(t, queued2.RequiresQueue)

	third := f.user(t, 3)
	queued3, err := f.svcs.Admission.Check(context.Background(), third, showing.ID)
	require.NoError(t, err)
	require.True(t, queued3.RequiresQueue)

	require.NoError(t, f.svcs.Liveness.Release(context.Background(), first, showing.ID))

	promoted, err := f.repos.Tokens.GetByToken(context.Background(), queued2.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, promoted.Status, "earliest waiting caller gets the freed slot")
	require.NotNil(t, promoted.HoldExpiresAt)

	waiting, err := f.repos.Tokens.GetByToken(context.Background(), queued3.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenWaiting, waiting.Status)

	position, err := f.repos.Tokens.WaitingPosition(context.Background(), waiting)
	require.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestCancelPromotesNextWaiting(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	first := f.user(t, 1)
	token := f.admit(t, first, showing.ID)

	second := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), second, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), token, first))

	promoted, err := f.repos.Tokens.GetByToken(context.Background(), queued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, promoted.Status, "cancelling an admitted session must hand the slot on")
	require.NotNil(t, promoted.HoldExpiresAt)

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active, "the freed slot belongs to the promoted caller")
}

func TestIssueRejectsSecondLiveToken(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)

	_, err := f.svcs.Tokens.Issue(context.Background(), userID, showing.ID, models.TokenWaiting)
	require.NoError(t, err)

	_, err = f.svcs.Tokens.Issue(context.Background(), userID, showing.ID, models.TokenWaiting)
	assert.ErrorIs(t, err, bileterr.ErrConflict, "one live token per user and showing")
}

func TestReleaseWithoutSessionSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)

	assert.NoError(t, f.svcs.Liveness.Release(context.Background(), userID, showing.ID))
}

func TestHeartbeatLiveTokens(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	admitted := f.user(t, 1)
	f.admit(t, admitted, showing.ID)
	assert.NoError(t, f.svcs.Liveness.Heartbeat(context.Background(), admitted, showing.ID))

	// A waiting caller has no liveness window to refresh, but polling with a
	// heartbeat must not read as an error.
	queued := f.user(t, 2)
	resp, err := f.svcs.Admission.Check(context.Background(), queued, showing.ID)
	require.NoError(t, err)
	require.True(t, resp.RequiresQueue)
	assert.NoError(t, f.svcs.Liveness.Heartbeat(context.Background(), queued, showing.ID))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenWaiting, stored.Status, "a heartbeat must not change a waiting token")

	stranger := f.user(t, 3)
	assert.ErrorIs(t, f.svcs.Liveness.Heartbeat(context.Background(), stranger, showing.ID), bileterr.ErrTokenInvalid)
}

func TestReleaseWithEmptyQueueKeepsSlotFree(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	first := f.user(t, 1)
	f.admit(t, first, showing.ID)

	second := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), second, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	// The waiting caller gives up just before a slot frees.
	require.NoError(t, f.svcs.Tokens.Cancel(context.Background(), queued.Token, second))
	require.NoError(t, f.svcs.Liveness.Release(context.Background(), first, showing.ID))

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "no slot may leak when activation finds nobody to admit")
}

package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

func (f *fixture) book(t *testing.T, userID int64, token string, showingID int64, seats ...models.SeatSelection) *models.Booking {
	t.Helper()
	booking, err := f.svcs.Bookings.Create(context.Background(), userID, &models.CreateBookingRequest{
		ShowingID:  showingID,
		QueueToken: token,
		Seats:      seats,
	})
	require.NoError(t, err)
	return booking
}

func (f *fixture) seatStatus(t *testing.T, showingID int64, sel models.SeatSelection) models.SeatStatus {
	t.Helper()
	seat, err := f.repos.Seats.GetBySelection(context.Background(), showingID, sel.Zone, sel.Row, sel.Number)
	require.NoError(t, err)
	return seat.Status
}

func (f *fixture) availableSeats(t *testing.T, showingID int64) int {
	t.Helper()
	showing, err := f.repos.Showings.GetByID(context.Background(), showingID)
	require.NoError(t, err)
	return showing.AvailableSeats
}

func TestCreateBookingLocksSeatsAndConsumesToken(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1), seatSel(1, 2))

	assert.Equal(t, models.BookingPending, booking.Status)
	assert.NotEmpty(t, booking.Number)
	assert.Equal(t, int64(10000), booking.TotalPrice)
	require.Len(t, booking.Seats, 2)

	assert.Equal(t, models.SeatLocked, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, models.SeatLocked, f.seatStatus(t, showing.ID, seatSel(1, 2)))
	assert.Equal(t, showing.TotalSeats-2, f.availableSeats(t, showing.ID))

	stored, err := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenUsed, stored.Status)

	active, err := f.slots.ActiveSlots(context.Background(), showing.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "a consumed session returns its admission slot")
}

func TestCreateBookingRejectsDuplicateSeats(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	_, err := f.svcs.Bookings.Create(context.Background(), userID, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: token,
		Seats:      []models.SeatSelection{seatSel(1, 1), seatSel(1, 1)},
	})
	assert.ErrorIs(t, err, bileterr.ErrSeatUnavailable)
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, showing.TotalSeats, f.availableSeats(t, showing.ID))
}

func TestCreateBookingUnknownSeat(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	_, err := f.svcs.Bookings.Create(context.Background(), userID, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: token,
		Seats:      []models.SeatSelection{{Zone: "A", Row: 99, Number: 1}},
	})
	assert.ErrorIs(t, err, bileterr.ErrNotFound)
}

func TestCreateBookingRequiresActiveToken(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	admitted := f.user(t, 1)
	activeToken := f.admit(t, admitted, showing.ID)

	queued := f.user(t, 2)
	resp, err := f.svcs.Admission.Check(context.Background(), queued, showing.ID)
	require.NoError(t, err)
	require.True(t, resp.RequiresQueue)

	// A waiting token cannot book.
	_, err = f.svcs.Bookings.Create(context.Background(), queued, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: resp.Token,
		Seats:      []models.SeatSelection{seatSel(1, 1)},
	})
	assert.ErrorIs(t, err, bileterr.ErrTokenInvalid)

	// Neither can someone else's token.
	_, err = f.svcs.Bookings.Create(context.Background(), queued, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: activeToken,
		Seats:      []models.SeatSelection{seatSel(1, 1)},
	})
	assert.ErrorIs(t, err, bileterr.ErrTokenInvalid)

	// Nor a made-up one.
	_, err = f.svcs.Bookings.Create(context.Background(), admitted, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: "deadbeef",
		Seats:      []models.SeatSelection{seatSel(1, 1)},
	})
	assert.ErrorIs(t, err, bileterr.ErrTokenInvalid)
}

func TestCreateBookingAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)

	// Another party already holds one of the two seats.
	taken, err := f.repos.Seats.GetBySelection(context.Background(), showing.ID, "A", 1, 2)
	require.NoError(t, err)
	won, err := f.repos.Seats.Lock(context.Background(), taken.ID, taken.Version)
	require.NoError(t, err)
	require.True(t, won)

	_, err = f.svcs.Bookings.Create(context.Background(), userID, &models.CreateBookingRequest{
		ShowingID:  showing.ID,
		QueueToken: token,
		Seats:      []models.SeatSelection{seatSel(1, 1), seatSel(1, 2)},
	})
	assert.ErrorIs(t, err, bileterr.ErrSeatUnavailable)

	// The free seat must not stay locked after the failed attempt.
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 1)))

	stored, repoErr := f.repos.Tokens.GetByToken(context.Background(), token)
	require.NoError(t, repoErr)
	assert.Equal(t, models.TokenActive, stored.Status, "a failed booking keeps the token usable")
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 2, 2, 5)

	users := []int64{f.user(t, 1), f.user(t, 2)}
	tokens := []string{
		f.admit(t, users[0], showing.ID),
		f.admit(t, users[1], showing.ID),
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svcs.Bookings.Create(context.Background(), users[i], &models.CreateBookingRequest{
				ShowingID:  showing.ID,
				QueueToken: tokens[i],
				Seats:      []models.SeatSelection{seatSel(1, 1)},
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t,
				bileterr.Is(err, bileterr.ErrSeatUnavailable) || bileterr.Is(err, bileterr.ErrConflict),
				"loser must see a seat conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one booking may take a contested seat")
	assert.Equal(t, models.SeatLocked, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, showing.TotalSeats-1, f.availableSeats(t, showing.ID))
}

func TestConfirmBookingMarksSeatsSold(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1), seatSel(1, 2))

	confirmed, err := f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)

	assert.Equal(t, models.SeatSold, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, models.SeatSold, f.seatStatus(t, showing.ID, seatSel(1, 2)))
	assert.Equal(t, showing.TotalSeats-2, f.availableSeats(t, showing.ID),
		"confirming keeps the counter where the booking left it")

	// Repeat confirmation is a no-op.
	again, err := f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, again.Status)
}

func TestConfirmSellsSeatReleasedMeanwhile(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1))

	// A lapsed-hold sweep returned the seat to inventory while the payment
	// was still in flight.
	seat, err := f.repos.Seats.GetBySelection(context.Background(), showing.ID, "A", 1, 1)
	require.NoError(t, err)
	won, err := f.repos.Seats.Unlock(context.Background(), seat.ID)
	require.NoError(t, err)
	require.True(t, won)
	ok, err := f.repos.Showings.AdjustAvailableSeats(context.Background(), showing.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	confirmed, err := f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)

	assert.Equal(t, models.SeatSold, f.seatStatus(t, showing.ID, seatSel(1, 1)),
		"a paid booking takes its seat back from inventory")
	assert.Equal(t, showing.TotalSeats-1, f.availableSeats(t, showing.ID))
}

func TestCreateBookingPromotesNextWaiting(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 1, 2, 5)

	buyer := f.user(t, 1)
	token := f.admit(t, buyer, showing.ID)

	waiter := f.user(t, 2)
	queued, err := f.svcs.Admission.Check(context.Background(), waiter, showing.ID)
	require.NoError(t, err)
	require.True(t, queued.RequiresQueue)

	f.book(t, buyer, token, showing.ID, seatSel(1, 1))

	promoted, err := f.repos.Tokens.GetByToken(context.Background(), queued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenActive, promoted.Status,
		"consuming a session must hand the slot to the next waiting caller")
	require.NotNil(t, promoted.HoldExpiresAt)
}

func TestConfirmCancelledBookingConflicts(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1))

	require.NoError(t, f.svcs.Bookings.Cancel(context.Background(), booking.ID, userID, "changed my mind"))

	_, err := f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	assert.ErrorIs(t, err, bileterr.ErrConflict)
}

func TestCancelPendingRestoresInventory(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(1, 1), seatSel(1, 2))

	require.NoError(t, f.svcs.Bookings.Cancel(context.Background(), booking.ID, userID, ""))

	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 1)))
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(1, 2)))
	assert.Equal(t, showing.TotalSeats, f.availableSeats(t, showing.ID))

	err := f.svcs.Bookings.Cancel(context.Background(), booking.ID, userID, "")
	assert.ErrorIs(t, err, bileterr.ErrAlreadyCancelled)

	assert.Equal(t, showing.TotalSeats, f.availableSeats(t, showing.ID),
		"repeat cancel must not release the seats twice")
}

func TestCancelConfirmedRestoresInventory(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)
	token := f.admit(t, userID, showing.ID)
	booking := f.book(t, userID, token, showing.ID, seatSel(2, 3))

	_, err := f.svcs.Bookings.Confirm(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Equal(t, models.SeatSold, f.seatStatus(t, showing.ID, seatSel(2, 3)))

	require.NoError(t, f.svcs.Bookings.Cancel(context.Background(), booking.ID, userID, "refund"))

	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, showing.ID, seatSel(2, 3)))
	assert.Equal(t, showing.TotalSeats, f.availableSeats(t, showing.ID))

	stored, err := f.repos.Bookings.GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "refund", *stored.CancelReason)
	require.NotNil(t, stored.CancelledAt, "cancellation must record when it happened")
	assert.False(t, stored.CancelledAt.Before(stored.CreatedAt))
}

func TestCancelBookingOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	owner := f.user(t, 1)
	other := f.user(t, 2)
	token := f.admit(t, owner, showing.ID)
	booking := f.book(t, owner, token, showing.ID, seatSel(1, 1))

	err := f.svcs.Bookings.Cancel(context.Background(), booking.ID, other, "")
	assert.ErrorIs(t, err, bileterr.ErrForbidden)
}

func TestGetBookingOwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	owner := f.user(t, 1)
	other := f.user(t, 2)
	token := f.admit(t, owner, showing.ID)
	booking := f.book(t, owner, token, showing.ID, seatSel(1, 1))

	got, err := f.svcs.Bookings.GetByID(context.Background(), booking.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = f.svcs.Bookings.GetByID(context.Background(), booking.ID, other)
	assert.ErrorIs(t, err, bileterr.ErrForbidden)
}

func TestListBookingsNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	showing := f.showing(t, 3, 2, 5)
	userID := f.user(t, 1)

	token := f.admit(t, userID, showing.ID)
	first := f.book(t, userID, token, showing.ID, seatSel(1, 1))
	require.NoError(t, f.svcs.Bookings.Cancel(context.Background(), first.ID, userID, ""))

	// The token was consumed by the first booking; re-admit for the second.
	require.NoError(t, f.svcs.Liveness.Release(context.Background(), userID, showing.ID))
	token = f.admit(t, userID, showing.ID)
	second := f.book(t, userID, token, showing.ID, seatSel(1, 2))

	list, err := f.svcs.Bookings.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

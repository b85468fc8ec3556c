package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bileterr "bilet/internal/errors"
	"bilet/internal/models"
)

// memoryState backs the in-process repositories. One mutex guards all maps;
// every compare-and-set runs inside it, which gives the same winner-takes-one
// semantics as the guarded SQL updates.
type memoryState struct {
	mu sync.Mutex

	nextUserID    int64
	nextShowingID int64
	nextSeatID    int64
	nextBookingID int64

	users    map[int64]*models.User
	showings map[int64]*models.Showing
	seats    map[int64]*models.Seat
	tokens   map[string]*models.QueueToken
	bookings map[int64]*models.Booking
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:    make(map[int64]*models.User),
		showings: make(map[int64]*models.Showing),
		seats:    make(map[int64]*models.Seat),
		tokens:   make(map[string]*models.QueueToken),
		bookings: make(map[int64]*models.Booking),
	}
}

type memoryUsers struct{ st *memoryState }

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextUserID++
	user.ID = r.st.nextUserID
	user.CreatedAt = time.Now()
	cp := *user
	r.st.users[user.ID] = &cp
	return nil
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, bileterr.ErrNotFound
}

func (r *memoryUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	u, ok := r.st.users[id]
	if !ok {
		return nil, bileterr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type memoryShowings struct{ st *memoryState }

func (r *memoryShowings) Create(_ context.Context, showing *models.Showing, zones []models.ZonePlan) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	totalSeats := 0
	for _, z := range zones {
		totalSeats += z.Rows * z.SeatsPerRow
	}
	showing.TotalSeats = totalSeats
	showing.AvailableSeats = totalSeats

	r.st.nextShowingID++
	showing.ID = r.st.nextShowingID
	showing.CreatedAt = time.Now()
	cp := *showing
	r.st.showings[showing.ID] = &cp

	for _, z := range zones {
		for row := 1; row <= z.Rows; row++ {
			for num := 1; num <= z.SeatsPerRow; num++ {
				r.st.nextSeatID++
				r.st.seats[r.st.nextSeatID] = &models.Seat{
					ID:        r.st.nextSeatID,
					ShowingID: showing.ID,
					Zone:      z.Zone,
					Row:       row,
					Number:    num,
					Grade:     z.Grade,
					Price:     z.Price,
					Status:    models.SeatAvailable,
				}
			}
		}
	}
	return nil
}

func (r *memoryShowings) GetByID(_ context.Context, id int64) (*models.Showing, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.showings[id]
	if !ok {
		return nil, bileterr.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryShowings) List(_ context.Context, page, pageSize int) ([]models.Showing, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	all := make([]models.Showing, 0, len(r.st.showings))
	for _, s := range r.st.showings {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartsAt.Before(all[j].StartsAt) })

	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memoryShowings) AdjustAvailableSeats(_ context.Context, id int64, delta int) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.showings[id]
	if !ok {
		return false, nil
	}
	next := s.AvailableSeats + delta
	if next < 0 || next > s.TotalSeats {
		return false, nil
	}
	s.AvailableSeats = next
	s.Version++
	return true, nil
}

type memorySeats struct{ st *memoryState }

func (r *memorySeats) GetBySelection(_ context.Context, showingID int64, zone string, row, number int) (*models.Seat, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.seats {
		if s.ShowingID == showingID && s.Zone == zone && s.Row == row && s.Number == number {
			cp := *s
			return &cp, nil
		}
	}
	return nil, bileterr.ErrNotFound
}

func (r *memorySeats) ListByShowing(_ context.Context, showingID int64, page, pageSize int, zone *string, status *models.SeatStatus) ([]models.Seat, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	var seats []models.Seat
	for _, s := range r.st.seats {
		if s.ShowingID != showingID {
			continue
		}
		if zone != nil && s.Zone != *zone {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		seats = append(seats, *s)
	}
	sort.Slice(seats, func(i, j int) bool {
		a, b := seats[i], seats[j]
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Number < b.Number
	})

	start := (page - 1) * pageSize
	if start >= len(seats) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(seats) {
		end = len(seats)
	}
	return seats[start:end], nil
}

func (r *memorySeats) Lock(_ context.Context, seatID, version int64) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.seats[seatID]
	if !ok || s.Status != models.SeatAvailable || s.Version != version {
		return false, nil
	}
	s.Status = models.SeatLocked
	s.Version++
	return true, nil
}

func (r *memorySeats) Unlock(_ context.Context, seatID int64) (bool, error) {
	return r.transition(seatID, models.SeatLocked, models.SeatAvailable)
}

func (r *memorySeats) MarkSold(_ context.Context, seatID int64) (bool, error) {
	return r.transition(seatID, models.SeatLocked, models.SeatSold)
}

func (r *memorySeats) SellAvailable(_ context.Context, seatID int64) (bool, error) {
	return r.transition(seatID, models.SeatAvailable, models.SeatSold)
}

func (r *memorySeats) ReleaseSold(_ context.Context, seatID int64) (bool, error) {
	return r.transition(seatID, models.SeatSold, models.SeatAvailable)
}

func (r *memorySeats) transition(seatID int64, from, to models.SeatStatus) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.seats[seatID]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.Version++
	return true, nil
}

type memoryTokens struct{ st *memoryState }

func (r *memoryTokens) Create(_ context.Context, token *models.QueueToken) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	// Same constraint as the partial unique index on (user_id, showing_id)
	// for live statuses.
	for _, t := range r.st.tokens {
		if t.UserID == token.UserID && t.ShowingID == token.ShowingID && !t.Status.Terminal() {
			return fmt.Errorf("%w: live token exists for user %d and showing %d",
				bileterr.ErrConflict, token.UserID, token.ShowingID)
		}
	}

	token.UpdatedAt = time.Now()
	cp := *token
	r.st.tokens[token.Token] = &cp
	return nil
}

func (r *memoryTokens) GetByToken(_ context.Context, token string) (*models.QueueToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tokens[token]
	if !ok {
		return nil, bileterr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memoryTokens) GetLive(_ context.Context, userID, showingID int64) (*models.QueueToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, t := range r.st.tokens {
		if t.UserID == userID && t.ShowingID == showingID && !t.Status.Terminal() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, bileterr.ErrNotFound
}

func (r *memoryTokens) UpdateStatus(_ context.Context, token string, from, to models.TokenStatus, holdExpiresAt *time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tokens[token]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	if to == models.TokenActive {
		now := time.Now()
		t.ActivatedAt = &now
		t.HoldExpiresAt = holdExpiresAt
	}
	return true, nil
}

func (r *memoryTokens) WaitingPosition(_ context.Context, tok *models.QueueToken) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ahead := 0
	for _, t := range r.st.tokens {
		if t.ShowingID != tok.ShowingID || t.Status != models.TokenWaiting {
			continue
		}
		if t.IssuedAt.Before(tok.IssuedAt) ||
			(t.IssuedAt.Equal(tok.IssuedAt) && t.Token < tok.Token) {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (r *memoryTokens) ListWaiting(_ context.Context, showingID int64, limit int) ([]models.QueueToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var waiting []models.QueueToken
	for _, t := range r.st.tokens {
		if t.ShowingID == showingID && t.Status == models.TokenWaiting {
			waiting = append(waiting, *t)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].IssuedAt.Equal(waiting[j].IssuedAt) {
			return waiting[i].IssuedAt.Before(waiting[j].IssuedAt)
		}
		return waiting[i].Token < waiting[j].Token
	})
	if limit > 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}
	return waiting, nil
}

func (r *memoryTokens) ListWaitingShowings(_ context.Context) ([]int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, t := range r.st.tokens {
		if t.Status == models.TokenWaiting && !seen[t.ShowingID] {
			seen[t.ShowingID] = true
			ids = append(ids, t.ShowingID)
		}
	}
	return ids, nil
}

func (r *memoryTokens) ListActive(_ context.Context) ([]models.QueueToken, error) {
	return r.filter(func(t *models.QueueToken) bool {
		return t.Status == models.TokenActive
	})
}

func (r *memoryTokens) ListHoldLapsed(_ context.Context, now time.Time) ([]models.QueueToken, error) {
	return r.filter(func(t *models.QueueToken) bool {
		return t.Status == models.TokenActive && t.HoldExpiresAt != nil && t.HoldExpiresAt.Before(now)
	})
}

func (r *memoryTokens) ListDeadlineLapsed(_ context.Context, now time.Time) ([]models.QueueToken, error) {
	return r.filter(func(t *models.QueueToken) bool {
		return !t.Status.Terminal() && t.ExpiresAt.Before(now)
	})
}

func (r *memoryTokens) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var purged int64
	for key, t := range r.st.tokens {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(r.st.tokens, key)
			purged++
		}
	}
	return purged, nil
}

func (r *memoryTokens) filter(keep func(*models.QueueToken) bool) ([]models.QueueToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.QueueToken
	for _, t := range r.st.tokens {
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type memoryBookings struct{ st *memoryState }

func (r *memoryBookings) Create(_ context.Context, booking *models.Booking) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextBookingID++
	booking.ID = r.st.nextBookingID
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	for i := range booking.Seats {
		booking.Seats[i].BookingID = booking.ID
	}
	cp := *booking
	cp.Seats = append([]models.BookingSeat(nil), booking.Seats...)
	r.st.bookings[booking.ID] = &cp
	return nil
}

func (r *memoryBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, bileterr.ErrNotFound
	}
	cp := *b
	cp.Seats = append([]models.BookingSeat(nil), b.Seats...)
	return &cp, nil
}

func (r *memoryBookings) ListByUser(_ context.Context, userID int64) ([]models.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.Booking
	for _, b := range r.st.bookings {
		if b.UserID == userID {
			cp := *b
			cp.Seats = append([]models.BookingSeat(nil), b.Seats...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryBookings) UpdateStatus(_ context.Context, id int64, from, to models.BookingStatus, reason *string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	b, ok := r.st.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	now := time.Now()
	b.Status = to
	if reason != nil {
		b.CancelReason = reason
	}
	if to == models.BookingCancelled {
		b.CancelledAt = &now
	}
	b.UpdatedAt = now
	return true, nil
}

func (r *memoryBookings) ListExpiredPending(_ context.Context, now time.Time) ([]models.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.Booking
	for _, b := range r.st.bookings {
		if b.Status == models.BookingPending && b.ExpiresAt.Before(now) {
			cp := *b
			cp.Seats = append([]models.BookingSeat(nil), b.Seats...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *memoryBookings) CountPendingByShowing(_ context.Context, showingID int64) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	count := 0
	for _, b := range r.st.bookings {
		if b.ShowingID == showingID && b.Status == models.BookingPending {
			count++
		}
	}
	return count, nil
}

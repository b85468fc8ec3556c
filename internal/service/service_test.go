package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/messaging"
	"bilet/internal/models"
	"bilet/internal/repository"
)

// fixture wires the services against the in-process stores.
type fixture struct {
	repos *repository.Repositories
	slots *cache.MemoryStore
	cfg   *config.Config
	svcs  *Services
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Load()
	cfg.Queue.OverbookingRatio = 1.0
	cfg.Queue.ConflictRetries = 3
	if mutate != nil {
		mutate(cfg)
	}

	repos := repository.NewMemory()
	slots := cache.NewMemoryStore()
	svcs := New(repos, slots, messaging.NoopPublisher{}, nil, cfg)

	return &fixture{repos: repos, slots: slots, cfg: cfg, svcs: svcs}
}

func (f *fixture) user(t *testing.T, n int) int64 {
	t.Helper()
	u := &models.User{
		Email:        fmt.Sprintf("user%d@test.local", n),
		PasswordHash: "hash",
	}
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u.ID
}

// showing creates a showing with a single zone of the given size.
func (f *fixture) showing(t *testing.T, admissionLimit, rows, seatsPerRow int) *models.Showing {
	t.Helper()
	s := &models.Showing{
		Title:          "Test Showing",
		StartsAt:       time.Now().Add(24 * time.Hour),
		AdmissionLimit: admissionLimit,
	}
	zones := []models.ZonePlan{
		{Zone: "A", Rows: rows, SeatsPerRow: seatsPerRow, Grade: "standard", Price: 5000},
	}
	require.NoError(t, f.repos.Showings.Create(context.Background(), s, zones))
	return s
}

// admit runs an admission check and requires immediate admission.
func (f *fixture) admit(t *testing.T, userID, showingID int64) string {
	t.Helper()
	resp, err := f.svcs.Admission.Check(context.Background(), userID, showingID)
	require.NoError(t, err)
	require.False(t, resp.RequiresQueue, "expected immediate admission")
	return resp.Token
}

func seatSel(row, number int) models.SeatSelection {
	return models.SeatSelection{Zone: "A", Row: row, Number: number}
}

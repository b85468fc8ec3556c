package service

import (
	"context"
	"fmt"

	"bilet/internal/logger"
	"bilet/internal/models"
	"bilet/internal/repository"
	"bilet/internal/search"
)

// ShowingService manages the showing catalog and its seat maps.
type ShowingService struct {
	repos *repository.Repositories
	index search.ShowingIndex
}

func NewShowingService(repos *repository.Repositories, index search.ShowingIndex) *ShowingService {
	return &ShowingService{repos: repos, index: index}
}

// Create inserts the showing, generates its seat ledger from the zone plans
// and indexes it for search. Indexing failures are logged, not fatal.
func (s *ShowingService) Create(ctx context.Context, req *models.CreateShowingRequest) (*models.Showing, error) {
	showing := &models.Showing{
		Title:          req.Title,
		StartsAt:       *req.StartsAt,
		AdmissionLimit: req.AdmissionLimit,
	}

	if err := s.repos.Showings.Create(ctx, showing, req.Zones); err != nil {
		return nil, fmt.Errorf("failed to create showing: %w", err)
	}

	if s.index != nil {
		if err := s.index.IndexShowing(ctx, showing); err != nil {
			logger.Get().Error("Failed to index showing",
				"showing_id", showing.ID, "error", err)
		}
	}
	return showing, nil
}

// GetByID returns one showing.
func (s *ShowingService) GetByID(ctx context.Context, id int64) (*models.Showing, error) {
	return s.repos.Showings.GetByID(ctx, id)
}

// List returns showings, via full-text search when a query is given and the
// index is reachable, otherwise straight from the database.
func (s *ShowingService) List(ctx context.Context, query string, page, pageSize int) ([]models.Showing, error) {
	if query == "" || s.index == nil {
		return s.repos.Showings.List(ctx, page, pageSize)
	}

	ids, err := s.index.SearchShowings(ctx, query, page, pageSize)
	if err != nil {
		logger.Get().Warn("Search unavailable, falling back to database listing", "error", err)
		return s.repos.Showings.List(ctx, page, pageSize)
	}

	showings := make([]models.Showing, 0, len(ids))
	for _, id := range ids {
		showing, err := s.repos.Showings.GetByID(ctx, id)
		if err != nil {
			continue
		}
		showings = append(showings, *showing)
	}
	return showings, nil
}

// ListSeats returns a page of the showing's seat map.
func (s *ShowingService) ListSeats(ctx context.Context, showingID int64, page, pageSize int, zone *string, status *models.SeatStatus) ([]models.Seat, error) {
	if _, err := s.repos.Showings.GetByID(ctx, showingID); err != nil {
		return nil, err
	}
	return s.repos.Seats.ListByShowing(ctx, showingID, page, pageSize, zone, status)
}

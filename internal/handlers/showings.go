package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bilet/internal/logger"
	"bilet/internal/models"
)

// CreateShowing - POST /api/showings
// Creates a showing and generates its seat ledger from the zone plans.
func (h *Handlers) CreateShowing(c *gin.Context) {
	var req models.CreateShowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	showing, err := h.services.Showings.Create(c.Request.Context(), &req)
	if err != nil {
		logger.Get().Error("Failed to create showing", "title", req.Title, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, showing)
}

// ListShowings - GET /api/showings
// Lists showings, optionally filtered by a full-text query.
func (h *Handlers) ListShowings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	if page < 1 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "page must be >= 1"})
		return
	}
	if pageSize < 1 || pageSize > 100 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "pageSize must be between 1 and 100"})
		return
	}

	showings, err := h.services.Showings.List(c.Request.Context(), c.Query("query"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if showings == nil {
		showings = []models.Showing{}
	}

	c.JSON(http.StatusOK, showings)
}

// ListSeats - GET /api/seats
// Returns a page of the showing's seat map with current statuses.
func (h *Handlers) ListSeats(c *gin.Context) {
	showingID, err := strconv.ParseInt(c.Query("showing_id"), 10, 64)
	if err != nil || showingID < 1 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "showing_id is required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "100"))

	var zone *string
	if z := c.Query("zone"); z != "" {
		zone = &z
	}
	var status *models.SeatStatus
	if st := c.Query("status"); st != "" {
		s := models.SeatStatus(st)
		status = &s
	}

	seats, err := h.services.Showings.ListSeats(c.Request.Context(), showingID, page, pageSize, zone, status)
	if err != nil {
		respondError(c, err)
		return
	}
	if seats == nil {
		seats = []models.Seat{}
	}

	c.JSON(http.StatusOK, seats)
}

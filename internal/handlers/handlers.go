package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	bileterr "bilet/internal/errors"
	"bilet/internal/models"
	"bilet/internal/service"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case bileterr.Is(err, bileterr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: err.Error()})
	case bileterr.Is(err, bileterr.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
	case bileterr.Is(err, bileterr.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case bileterr.Is(err, bileterr.ErrTokenInvalid):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
	case bileterr.Is(err, bileterr.ErrSeatUnavailable),
		bileterr.Is(err, bileterr.ErrConflict),
		bileterr.Is(err, bileterr.ErrCapacityExhausted):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case bileterr.Is(err, bileterr.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bilet/internal/logger"
	"bilet/internal/middleware"
	"bilet/internal/models"
)

// CheckAdmission - POST /api/admission/check
// Admits the caller or places them in the showing's queue.
func (h *Handlers) CheckAdmission(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.AdmissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := h.services.Admission.Check(c.Request.Context(), userID, req.ShowingID)
	if err != nil {
		logger.Get().Error("Admission check failed",
			"user_id", userID, "showing_id", req.ShowingID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Heartbeat - POST /api/admission/heartbeat
// Refreshes the caller's session liveness.
func (h *Handlers) Heartbeat(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.services.Liveness.Heartbeat(c.Request.Context(), userID, req.ShowingID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Release - POST /api/admission/release
// Ends the caller's admission. Idempotent.
func (h *Handlers) Release(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.services.Liveness.Release(c.Request.Context(), userID, req.ShowingID); err != nil {
		logger.Get().Error("Release failed",
			"user_id", userID, "showing_id", req.ShowingID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "released"})
}

// TokenStatus - GET /api/queue/status/:token
// Reports queue position and booking eligibility for polling clients.
func (h *Handlers) TokenStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	resp, err := h.services.Tokens.Status(c.Request.Context(), c.Param("token"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelToken - DELETE /api/queue/token/:token
// Leaves the queue. Idempotent for terminal tokens.
func (h *Handlers) CancelToken(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	if err := h.services.Tokens.Cancel(c.Request.Context(), c.Param("token"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "cancelled"})
}

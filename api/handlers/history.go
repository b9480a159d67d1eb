package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/droplet-predictor/api/middleware"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/resilience"
	"github.com/OldStager01/droplet-predictor/pkg/validation"
)

type HistoryHandler struct {
	history      HistoryRecorder
	defaultLimit int
	maxLimit     int
}

func NewHistoryHandler(history HistoryRecorder, defaultLimit, maxLimit int) *HistoryHandler {
	if maxLimit <= 0 {
		maxLimit = 500
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &HistoryHandler{
		history:      history,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// List godoc
// @Summary Prediction history
// @Description The authenticated user's predictions, newest first
// @Tags Predictions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Invalid limit"
// @Failure 401 {object} map[string]string "User not authenticated"
// @Failure 503 {object} map[string]string "History temporarily unavailable"
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	limit = validation.ClampLimit(limit, h.defaultLimit, h.maxLimit)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := h.history.List(ctx, userID, limit)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history temporarily unavailable"})
			return
		}
		logger.WithError(err).Error("Failed to list prediction history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": records,
		"count":       len(records),
	})
}

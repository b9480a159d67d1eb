package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/droplet-predictor/api/middleware"
	"github.com/OldStager01/droplet-predictor/internal/predictor"
	"github.com/OldStager01/droplet-predictor/internal/registry"
	"github.com/OldStager01/droplet-predictor/pkg/models"
)

// Predictor is implemented by predictor.Predictor.
type Predictor interface {
	Predict(ctx context.Context, id string, features []float64) (float64, error)
	Configurations() []registry.ConfigurationSpec
}

// HistoryRecorder is implemented by history.Recorder.
type HistoryRecorder interface {
	Record(ctx context.Context, rec *models.PredictionRecord) error
	List(ctx context.Context, userID, limit int) ([]*models.PredictionRecord, error)
}

type PredictHandler struct {
	predictor Predictor
	history   HistoryRecorder
	models    ModelCache
	timeout   time.Duration
}

// NewPredictHandler builds the handler; history and models may be nil.
func NewPredictHandler(p Predictor, history HistoryRecorder, models ModelCache, timeout time.Duration) *PredictHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PredictHandler{
		predictor: p,
		history:   history,
		models:    models,
		timeout:   timeout,
	}
}

type PredictRequest struct {
	DataType  string    `json:"dataType" binding:"required" example:"type1"`
	InputData []float64 `json:"inputData" binding:"required"`
}

type PredictResponse struct {
	Prediction float64 `json:"prediction" example:"142.7"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty" example:"DimensionMismatch"`
	Cause string `json:"cause,omitempty" example:"ArtifactNotFound"`
}

// StatusForKind maps a pipeline error kind to its HTTP status.
func StatusForKind(kind predictor.ErrorKind) int {
	switch kind {
	case predictor.KindUnknownConfiguration,
		predictor.KindDimensionMismatch,
		predictor.KindInvalidInputValue:
		return http.StatusBadRequest
	case predictor.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Predict godoc
// @Summary Predict droplet diameter
// @Description Run the configuration's model on raw input features given in its feature order
// @Tags Predictions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PredictRequest true "Configuration and features"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} ErrorResponse "Unknown configuration or invalid features"
// @Failure 503 {object} ErrorResponse "Model could not be loaded"
// @Failure 500 {object} ErrorResponse "Prediction failed"
// @Router /predict [post]
func (h *PredictHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Kind:  string(predictor.KindInvalidInputValue),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	prediction, err := h.predictor.Predict(ctx, req.DataType, req.InputData)
	if err != nil {
		c.JSON(errorResponse(req.DataType, err))
		return
	}

	if userID := middleware.GetUserID(c); userID != 0 && h.history != nil {
		rec := models.NewPredictionRecord(userID, req.DataType, req.InputData, prediction)
		// the response does not wait on a client disconnect
		_ = h.history.Record(context.WithoutCancel(c.Request.Context()), rec)
	}

	c.JSON(http.StatusOK, PredictResponse{Prediction: prediction})
}

// errorResponse keeps load and internal failures opaque: their causes carry
// server paths and decoder output, which are logged, not returned.
func errorResponse(dataType string, err error) (int, ErrorResponse) {
	kind := predictor.Kind(err)
	status := StatusForKind(kind)

	resp := ErrorResponse{Error: err.Error(), Kind: string(kind)}
	switch {
	case kind == predictor.KindModelUnavailable:
		resp.Error = fmt.Sprintf("model for %s is unavailable", dataType)
		if cause := predictor.CauseKind(err); cause != kind {
			resp.Cause = string(cause)
		}
	case status == http.StatusInternalServerError:
		resp.Error = "prediction failed"
	}
	return status, resp
}

type ConfigurationResponse struct {
	ID           string   `json:"id" example:"type1"`
	DisplayName  string   `json:"display_name" example:"Co-flow"`
	InputDim     int      `json:"input_dim" example:"8"`
	FeatureOrder []string `json:"feature_order"`
	Loaded       bool     `json:"loaded"`
}

// Configurations godoc
// @Summary List configurations
// @Description Known configurations, their feature order and whether their model is loaded
// @Tags Predictions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /configurations [get]
func (h *PredictHandler) Configurations(c *gin.Context) {
	loaded := make(map[string]bool)
	if h.models != nil {
		for _, id := range h.models.Cached() {
			loaded[id] = true
		}
	}

	specs := h.predictor.Configurations()
	out := make([]ConfigurationResponse, len(specs))
	for i, s := range specs {
		out[i] = ConfigurationResponse{
			ID:           s.ID,
			DisplayName:  s.DisplayName,
			InputDim:     s.InputDim,
			FeatureOrder: s.FeatureOrder,
			Loaded:       loaded[s.ID],
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"configurations": out,
		"count":          len(out),
	})
}

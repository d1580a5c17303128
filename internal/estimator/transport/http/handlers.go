// Package http exposes the Estimator's two public operations — predict and
// report — over gin, following the health-check-plus-versioned-route-group
// shape cmd/order-service uses for its HTTP transport.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/internal/estimator/estimator"
	"github.com/dimajoyti/ape/pkg/logger"
	"github.com/dimajoyti/ape/pkg/monitoring"
)

// PredictRequest is the JSON body of POST /api/v1/predict.
type PredictRequest struct {
	TaskName      string   `json:"task_name" binding:"required"`
	InputQuantity float64  `json:"input_quantity" binding:"required,gt=0"`
	ClusterLoad   float64  `json:"cluster_load" binding:"gte=0"`
	MaxTimeSLO    *float64 `json:"max_time_slo,omitempty"`
}

// PredictResponse is the JSON body returned by POST /api/v1/predict.
type PredictResponse struct {
	S                 int     `json:"s"`
	Gamma             float64 `json:"gamma"`
	PredictedAmdahl   float64 `json:"predicted_amdahl"`
	PredictedResidual float64 `json:"predicted_residual"`
}

// ReportRequest is the JSON body of POST /api/v1/report.
type ReportRequest struct {
	TaskName          string  `json:"task_name" binding:"required"`
	S                 int     `json:"s" binding:"required,gte=1"`
	Gamma             float64 `json:"gamma" binding:"required,gt=0"`
	ClusterLoad       float64 `json:"cluster_load" binding:"gte=0"`
	TActual           float64 `json:"t_actual" binding:"required,gt=0"`
	PredictedAmdahl   float64 `json:"predicted_amdahl"`
	PredictedResidual float64 `json:"predicted_residual"`
}

// Handlers wires the Estimator into gin routes.
type Handlers struct {
	estimator *estimator.Estimator
	log       *logger.Logger
	health    *monitoring.HealthChecker
}

// NewHandlers builds the HTTP handlers for the Public API. health may be
// nil, in which case /health reports healthy unconditionally.
func NewHandlers(e *estimator.Estimator, log *logger.Logger, health *monitoring.HealthChecker) *Handlers {
	return &Handlers{estimator: e, log: log, health: health}
}

// RegisterRoutes mounts the health check and the versioned API group on
// router, mirroring cmd/order-service's route layout.
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/predict", h.predict)
		v1.POST("/report", h.report)
	}
}

func (h *Handlers) healthCheck(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "ape"})
		return
	}

	overall := h.health.CheckHealth(c.Request.Context())
	status := http.StatusOK
	if overall.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, overall)
}

func (h *Handlers) predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prediction, err := h.estimator.Predict(c.Request.Context(), req.TaskName, req.InputQuantity, req.ClusterLoad, req.MaxTimeSLO)
	if err != nil {
		h.log.WithError(err).WithField("task_name", req.TaskName).Error("predict failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		S:                 prediction.S,
		Gamma:             prediction.Gamma,
		PredictedAmdahl:   prediction.PredictedAmdahl,
		PredictedResidual: prediction.PredictedResidual,
	})
}

func (h *Handlers) report(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.estimator.Feedback(c.Request.Context(), req.TaskName, req.S, req.Gamma, req.ClusterLoad,
		req.TActual, req.PredictedAmdahl, req.PredictedResidual)
	if err != nil {
		h.log.WithError(err).WithField("task_name", req.TaskName).Error("report failed")
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/middleware"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/services"
)

// PickupService records on-demand pickup requests
type PickupService interface {
	CreateRequest(ctx context.Context, req *models.CreatePickupRequest, sessionBookingID string) (*models.PickupRequest, error)
}

// PickupHandler handles pickup dispatch HTTP requests
type PickupHandler struct {
	pickups PickupService
	logger  *logrus.Logger
}

// NewPickupHandler creates a new pickup handler
func NewPickupHandler(pickups PickupService, logger *logrus.Logger) *PickupHandler {
	return &PickupHandler{pickups: pickups, logger: logger}
}

// CreatePickupRequest handles POST /api/v1/pickup-requests
func (h *PickupHandler) CreatePickupRequest(c *gin.Context) {
	var req models.CreatePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.CreatePickupResponse{
			Success: false,
			Error:   "Name, phone, pickup location and a group size between 1 and 50 are required",
		})
		return
	}

	var sessionBookingID string
	if sessionCtx, ok := middleware.GetSessionContext(c); ok {
		sessionBookingID = sessionCtx.BookingID
	}

	record, err := h.pickups.CreateRequest(c.Request.Context(), &req, sessionBookingID)
	if err != nil {
		var validationErr *services.PickupValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   validationErr.Message,
				"field":   validationErr.Field,
			})
			return
		}
		h.logger.WithError(err).WithField("pickup_location", req.PickupLocation).Error("Failed to create pickup request")
		c.JSON(http.StatusInternalServerError, models.CreatePickupResponse{Success: false, Error: "Failed to create pickup request"})
		return
	}

	c.JSON(http.StatusCreated, models.CreatePickupResponse{
		Success: true,
		Request: &models.PickupRequestRef{
			ID:             record.ID.String(),
			Status:         record.Status,
			VehicleCount:   record.VehicleCount,
			VehicleSummary: record.VehicleSummary,
		},
	})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/middleware"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/services"
	"github.com/hoponpass/daypass-backend/internal/session"
	"github.com/hoponpass/daypass-backend/internal/utils"
)

// BookingService is the booking behaviour the handler exposes
type BookingService interface {
	CreateBooking(req *models.CreateBookingRequest) (*models.Booking, bool, error)
	VerifyCredentials(req *models.VerifyCredentialsRequest) (*models.VerifyCredentialsResponse, error)
	VerifyCode(code string) (*models.SessionBooking, error)
	LookupBooking(id, lastName string) (*models.Booking, error)
}

// VerifyLimiter throttles failed verifications
type VerifyLimiter interface {
	CheckVerifyRateLimit(bookingID, ip string) error
	RecordFailedAttempt(bookingID, ip string) error
}

// BookingHandler handles day-pass booking HTTP requests
type BookingHandler struct {
	bookings BookingService
	limiter  VerifyLimiter
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// WithRateLimiter throttles the verify endpoints with limiter
func (h *BookingHandler) WithRateLimiter(limiter VerifyLimiter) *BookingHandler {
	h.limiter = limiter
	return h
}

// ============================================================================
// VERIFY
// ============================================================================

// VerifyCredentials handles POST /api/v1/bookings/verify
func (h *BookingHandler) VerifyCredentials(c *gin.Context) {
	var req models.VerifyCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.VerifyCredentialsResponse{
			Success: false,
			Error:   session.ErrMissingCredentials.Error(),
		})
		return
	}

	ip := utils.GetRealIP(c)
	if h.throttled(c, req.BookingID, ip) {
		return
	}

	resp, err := h.bookings.VerifyCredentials(&req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.recordFailure(req.BookingID, ip)
			c.JSON(http.StatusUnauthorized, models.VerifyCredentialsResponse{
				Success: false,
				Error:   session.DefaultVerificationMessage,
			})
			return
		}
		h.logger.WithError(err).WithField("booking_id", req.BookingID).Error("Failed to verify booking credentials")
		c.JSON(http.StatusInternalServerError, models.VerifyCredentialsResponse{
			Success: false,
			Error:   "Failed to verify booking",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyCode handles POST /api/v1/bookings/verify-code
func (h *BookingHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.VerifyCodeResponse{Success: false, Error: "Booking code is required"})
		return
	}

	ip := utils.GetRealIP(c)
	if h.throttled(c, req.Code, ip) {
		return
	}

	booking, err := h.bookings.VerifyCode(req.Code)
	if err != nil {
		if errors.Is(err, services.ErrBookingNotFound) {
			h.recordFailure(req.Code, ip)
		}
		h.bookingError(c, err, req.Code)
		return
	}

	c.JSON(http.StatusOK, models.VerifyCodeResponse{Success: true, Booking: booking})
}

// Session handles GET /api/v1/bookings/session for a verified session token
func (h *BookingHandler) Session(c *gin.Context) {
	sessionCtx, ok := middleware.GetSessionContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.VerifyCodeResponse{Success: false, Error: "Session required"})
		return
	}

	booking, err := h.bookings.VerifyCode(sessionCtx.BookingID)
	if err != nil {
		h.bookingError(c, err, sessionCtx.BookingID)
		return
	}

	c.JSON(http.StatusOK, models.VerifyCodeResponse{Success: true, Booking: booking})
}

// ============================================================================
// LOOKUP / CREATE
// ============================================================================

// GetBooking handles GET /api/v1/bookings/:id?last_name=
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id := c.Param("id")
	booking, err := h.bookings.LookupBooking(id, c.Query("last_name"))
	if err != nil {
		if errors.Is(err, services.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, models.GetBookingResponse{Success: false, Error: "Booking not found"})
			return
		}
		h.logger.WithError(err).WithField("booking_id", id).Error("Failed to look up booking")
		c.JSON(http.StatusInternalServerError, models.GetBookingResponse{Success: false, Error: "Failed to look up booking"})
		return
	}

	c.JSON(http.StatusOK, models.GetBookingResponse{Success: true, Booking: booking})
}

// CreateBooking handles POST /api/v1/bookings. Replaying a draft token returns
// the original booking with 200 instead of 201.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.CreateBookingResponse{Success: false, Error: "Invalid request body"})
		return
	}

	booking, replayed, err := h.bookings.CreateBooking(&req)
	if err != nil {
		var validationErr *services.BookingValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, models.CreateBookingResponse{Success: false, Error: validationErr.Message})
			return
		}
		h.logger.WithError(err).WithField("draft_token", req.DraftToken).Error("Failed to create booking")
		c.JSON(http.StatusInternalServerError, models.CreateBookingResponse{Success: false, Error: "Failed to create booking"})
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, models.CreateBookingResponse{Success: true, Booking: booking})
}

// throttled answers 429 when the limiter refuses the attempt. Limiter failures
// let the request through.
func (h *BookingHandler) throttled(c *gin.Context, bookingID, ip string) bool {
	if h.limiter == nil {
		return false
	}

	err := h.limiter.CheckVerifyRateLimit(bookingID, ip)
	if err == nil {
		return false
	}

	var rateLimitErr *services.RateLimitError
	if !errors.As(err, &rateLimitErr) {
		h.logger.WithError(err).Warn("Verification rate limit check failed")
		return false
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"ip":         ip,
		"type":       rateLimitErr.Type,
	}).Warn("Booking verification rate limited")

	retry := int(time.Until(rateLimitErr.RetryAfter).Seconds()) + 1
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"success":     false,
		"error":       rateLimitErr.Message,
		"retry_after": rateLimitErr.RetryAfter,
	})
	return true
}

func (h *BookingHandler) recordFailure(bookingID, ip string) {
	if h.limiter == nil {
		return
	}
	if err := h.limiter.RecordFailedAttempt(bookingID, ip); err != nil {
		h.logger.WithError(err).Warn("Failed to record verification attempt")
	}
}

func (h *BookingHandler) bookingError(c *gin.Context, err error, code string) {
	if errors.Is(err, services.ErrBookingNotFound) {
		c.JSON(http.StatusNotFound, models.VerifyCodeResponse{Success: false, Error: "Invalid booking code"})
		return
	}
	h.logger.WithError(err).WithField("booking_id", code).Error("Failed to verify booking code")
	c.JSON(http.StatusInternalServerError, models.VerifyCodeResponse{Success: false, Error: "Failed to verify booking code"})
}

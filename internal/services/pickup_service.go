package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/dispatch"
	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/pkg/sms"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// PickupValidationError is returned for pickup requests that cannot be dispatched
type PickupValidationError struct {
	Field   string
	Message string
}

func (e *PickupValidationError) Error() string {
	return e.Message
}

// PickupStore persists pickup requests
type PickupStore interface {
	Create(req *models.PickupRequest) error
}

// BookingFinder looks up a booking by its code
type BookingFinder interface {
	GetByID(id string) (*models.Booking, error)
}

// PickupService sizes and records on-demand pickups
type PickupService struct {
	store        PickupStore
	bookings     BookingFinder
	sms          sms.Gateway
	metrics      *metrics.Metrics
	phones       *validator.PhoneValidator
	maxGroupSize int
	logger       *logrus.Logger
}

// NewPickupService creates a new PickupService. sms may be nil to skip confirmations.
func NewPickupService(
	store PickupStore,
	bookings BookingFinder,
	gateway sms.Gateway,
	m *metrics.Metrics,
	maxGroupSize int,
	logger *logrus.Logger,
) *PickupService {
	if maxGroupSize <= 0 || maxGroupSize > dispatch.MaxGroupSize {
		maxGroupSize = dispatch.MaxGroupSize
	}
	return &PickupService{
		store:        store,
		bookings:     bookings,
		sms:          gateway,
		metrics:      m,
		phones:       validator.NewPhoneValidator(),
		maxGroupSize: maxGroupSize,
		logger:       logger,
	}
}

// CreateRequest validates, sizes and stores a pickup request. sessionBookingID,
// when set, comes from a verified session token and takes precedence over the
// booking ID in the payload.
func (s *PickupService) CreateRequest(ctx context.Context, req *models.CreatePickupRequest, sessionBookingID string) (*models.PickupRequest, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, s.reject("customer_name", "customer name is required")
	}

	prefix, local := s.phones.Split(req.CustomerPhone, "")
	phone, err := s.phones.Validate(prefix, local)
	if err != nil {
		return nil, s.reject("customer_phone", "a phone number with country code is required")
	}

	pickup := strings.TrimSpace(req.PickupLocation)
	if !models.IsKnownPickupLocation(pickup) {
		return nil, s.reject("pickup_location", "please choose a pickup location from the list")
	}

	var destination *string
	if d := strings.TrimSpace(req.Destination); d != "" {
		if d == pickup {
			return nil, s.reject("destination", "destination must differ from the pickup location")
		}
		destination = &d
	}

	if req.GroupSize < 1 || req.GroupSize > s.maxGroupSize {
		return nil, s.reject("group_size", fmt.Sprintf("group size must be between 1 and %d", s.maxGroupSize))
	}

	bookingID := models.NormalizeBookingCode(req.BookingID)
	if sessionBookingID != "" {
		bookingID = sessionBookingID
	}
	var bookingRef *string
	if bookingID != "" {
		booking, err := s.bookings.GetByID(bookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to check booking: %w", err)
		}
		if booking == nil {
			return nil, s.reject("booking_id", "invalid booking code")
		}
		bookingRef = &booking.ID
	}

	allocation, err := dispatch.Allocate(req.GroupSize)
	if err != nil {
		return nil, s.reject("group_size", err.Error())
	}

	record := &models.PickupRequest{
		BookingID:      bookingRef,
		CustomerName:   name,
		CustomerPhone:  phone,
		PickupLocation: pickup,
		Destination:    destination,
		GroupSize:      req.GroupSize,
		VehicleCount:   allocation.VehicleCount,
		VehicleSummary: allocation.Summary,
		Status:         models.PickupStatusPending,
	}
	if err := s.store.Create(record); err != nil {
		s.metrics.PickupRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.PickupRequests.WithLabelValues("created").Inc()
	s.metrics.PickupVehicles.Observe(float64(allocation.VehicleCount))
	s.logger.WithFields(logrus.Fields{
		"request_id":      record.ID,
		"booking_id":      bookingID,
		"group_size":      record.GroupSize,
		"vehicle_count":   record.VehicleCount,
		"pickup_location": record.PickupLocation,
	}).Info("Pickup request created")

	s.notify(ctx, record, allocation)
	return record, nil
}

func (s *PickupService) reject(field, message string) error {
	s.metrics.PickupRequests.WithLabelValues("rejected").Inc()
	return &PickupValidationError{Field: field, Message: message}
}

// notify texts the customer a confirmation. Failures are logged only.
func (s *PickupService) notify(ctx context.Context, req *models.PickupRequest, allocation dispatch.Allocation) {
	if s.sms == nil {
		return
	}
	message := fmt.Sprintf("Pickup requested at %s. %s Reference: %s",
		req.PickupLocation, allocation.Guidance(), shortReference(req.ID.String()))
	if _, err := s.sms.Send(ctx, req.CustomerPhone, message); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": req.ID,
			"gateway":    s.sms.GetName(),
		}).Warn("Failed to send pickup confirmation SMS")
	}
}

func shortReference(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// PickupStatus represents the dispatch status of an on-demand pickup
type PickupStatus string

const (
	PickupStatusPending    PickupStatus = "pending"
	PickupStatusDispatched PickupStatus = "dispatched"
	PickupStatusCompleted  PickupStatus = "completed"
	PickupStatusCancelled  PickupStatus = "cancelled"
)

// PickupLocations is the fixed set of stops a pickup can start from
var PickupLocations = []string{
	"Sintra Train Station",
	"Sintra Village Centre",
	"Pena Palace",
	"Moorish Castle",
	"Quinta da Regaleira",
	"Monserrate Palace",
	"Cabo da Roca",
	"Cascais Marina",
}

// IsKnownPickupLocation reports whether loc is one of PickupLocations
func IsKnownPickupLocation(loc string) bool {
	for _, l := range PickupLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// PickupRequest is a persisted on-demand dispatch request (pickup_requests table)
type PickupRequest struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	BookingID      *string      `db:"booking_id" json:"booking_id,omitempty"`
	CustomerName   string       `db:"customer_name" json:"customer_name"`
	CustomerPhone  string       `db:"customer_phone" json:"customer_phone"`
	PickupLocation string       `db:"pickup_location" json:"pickup_location"`
	Destination    *string      `db:"destination" json:"destination,omitempty"`
	GroupSize      int          `db:"group_size" json:"group_size"`
	VehicleCount   int          `db:"vehicle_count" json:"vehicle_count"`
	VehicleSummary string       `db:"vehicle_summary" json:"vehicle_summary"`
	Status         PickupStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// CreatePickupRequest is the payload the pickup flow submits
type CreatePickupRequest struct {
	BookingID      string `json:"booking_id,omitempty"`
	CustomerName   string `json:"customer_name" binding:"required"`
	CustomerPhone  string `json:"customer_phone" binding:"required"`
	PickupLocation string `json:"pickup_location" binding:"required"`
	Destination    string `json:"destination,omitempty"`
	GroupSize      int    `json:"group_size" binding:"required,min=1,max=50"`
}

// PickupRequestRef is the durable reference returned to the customer
type PickupRequestRef struct {
	ID             string       `json:"id"`
	Status         PickupStatus `json:"status"`
	VehicleCount   int          `json:"vehicle_count,omitempty"`
	VehicleSummary string       `json:"vehicle_summary,omitempty"`
}

// CreatePickupResponse answers a pickup submission
type CreatePickupResponse struct {
	Success bool              `json:"success"`
	Request *PickupRequestRef `json:"request,omitempty"`
	Error   string            `json:"error,omitempty"`
}

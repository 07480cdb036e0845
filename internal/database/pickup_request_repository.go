package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hoponpass/daypass-backend/internal/models"
)

// PickupRequestRepository handles database operations for pickup_requests table
type PickupRequestRepository struct {
	db DB
}

// NewPickupRequestRepository creates a new PickupRequestRepository
func NewPickupRequestRepository(db DB) *PickupRequestRepository {
	return &PickupRequestRepository{db: db}
}

// Create inserts a pickup request
func (r *PickupRequestRepository) Create(req *models.PickupRequest) error {
	query := `
		INSERT INTO pickup_requests (
			id, booking_id, customer_name, customer_phone, pickup_location,
			destination, group_size, vehicle_count, vehicle_summary, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = models.PickupStatusPending
	}

	err := r.db.QueryRow(
		query,
		req.ID, req.BookingID, req.CustomerName, req.CustomerPhone, req.PickupLocation,
		req.Destination, req.GroupSize, req.VehicleCount, req.VehicleSummary, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pickup request: %w", err)
	}
	return nil
}

// GetByID retrieves a pickup request. Returns nil when not found.
func (r *PickupRequestRepository) GetByID(id uuid.UUID) (*models.PickupRequest, error) {
	query := `
		SELECT id, booking_id, customer_name, customer_phone, pickup_location,
			   destination, group_size, vehicle_count, vehicle_summary, status,
			   created_at, updated_at
		FROM pickup_requests
		WHERE id = $1
	`

	var req models.PickupRequest
	if err := r.db.Get(&req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pickup request: %w", err)
	}
	return &req, nil
}

// UpdateStatus moves a pickup request to status
func (r *PickupRequestRepository) UpdateStatus(id uuid.UUID, status models.PickupStatus) error {
	result, err := r.db.Exec(`UPDATE pickup_requests SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update pickup request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pickup request not found")
	}
	return nil
}

// PurgeBefore deletes pickup requests created before cutoff
func (r *PickupRequestRepository) PurgeBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM pickup_requests WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge pickup requests: %w", err)
	}
	return result.RowsAffected()
}

package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/internal/models"
)

func TestPickupRequestRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRequestRepository(db)

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		bookingID := "AB-1234"
		req := &models.PickupRequest{
			BookingID:      &bookingID,
			CustomerName:   "Ana Silva",
			CustomerPhone:  "+351 912345678",
			PickupLocation: "Pena Palace",
			GroupSize:      8,
			VehicleCount:   2,
			VehicleSummary: "1 Premium Van (6) + 1 Tuk Tuk (2)",
		}

		mock.ExpectQuery(`INSERT INTO pickup_requests`).
			WithArgs(sqlmock.AnyArg(), &bookingID, "Ana Silva", "+351 912345678", "Pena Palace",
				sqlmock.AnyArg(), 8, 2, sqlmock.AnyArg(), models.PickupStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		require.NoError(t, repo.Create(req))
		assert.NotEqual(t, uuid.Nil, req.ID)
		assert.Equal(t, models.PickupStatusPending, req.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO pickup_requests`).WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(&models.PickupRequest{GroupSize: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create pickup request")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPickupRequestRepositoryGetAndUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRequestRepository(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`(?s)SELECT .+ FROM pickup_requests\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "customer_name", "customer_phone", "pickup_location",
			"destination", "group_size", "vehicle_count", "vehicle_summary", "status",
			"created_at", "updated_at",
		}).AddRow(id.String(), nil, "Ana", "+351 912345678", "Pena Palace", "Cabo da Roca", 3, 1, "1 UMM Jeep (3)", "pending", now, now))

	req, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Nil(t, req.BookingID)
	require.NotNil(t, req.Destination)
	assert.Equal(t, "Cabo da Roca", *req.Destination)

	mock.ExpectExec(`UPDATE pickup_requests SET status`).
		WithArgs(models.PickupStatusDispatched, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(id, models.PickupStatusDispatched))

	mock.ExpectExec(`UPDATE pickup_requests SET status`).
		WithArgs(models.PickupStatusCancelled, id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(id, models.PickupStatusCancelled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPickupRequestRepositoryPurgeBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRequestRepository(db)
	cutoff := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM pickup_requests WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PurgeBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

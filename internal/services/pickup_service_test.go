package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
)

type fakePickupStore struct {
	created []*models.PickupRequest
	err     error
}

func (f *fakePickupStore) Create(req *models.PickupRequest) error {
	if f.err != nil {
		return f.err
	}
	req.ID = uuid.New()
	f.created = append(f.created, req)
	return nil
}

type fakeBookingFinder map[string]*models.Booking

func (f fakeBookingFinder) GetByID(id string) (*models.Booking, error) {
	return f[id], nil
}

type recordingGateway struct {
	phones   []string
	messages []string
	err      error
}

func (g *recordingGateway) Send(_ context.Context, phone, message string) (int64, error) {
	g.phones = append(g.phones, phone)
	g.messages = append(g.messages, message)
	return 1, g.err
}

func (g *recordingGateway) GetName() string { return "recording" }

func validPickup() *models.CreatePickupRequest {
	return &models.CreatePickupRequest{
		CustomerName:   " Ana Silva ",
		CustomerPhone:  "+351 912 345 678",
		PickupLocation: "Pena Palace",
		Destination:    "Sintra Train Station",
		GroupSize:      8,
	}
}

func newTestPickupService(store *fakePickupStore, gw *recordingGateway) (*PickupService, *metrics.Metrics) {
	m := metrics.New()
	bookings := fakeBookingFinder{"AB-1234": {ID: "AB-1234"}}
	if gw == nil {
		return NewPickupService(store, bookings, nil, m, 50, quietLogger()), m
	}
	return NewPickupService(store, bookings, gw, m, 50, quietLogger()), m
}

func TestCreatePickupRequest(t *testing.T) {
	store := &fakePickupStore{}
	gw := &recordingGateway{}
	svc, m := newTestPickupService(store, gw)

	req, err := svc.CreateRequest(context.Background(), validPickup(), "")
	require.NoError(t, err)
	assert.Equal(t, "Ana Silva", req.CustomerName)
	assert.Equal(t, "+351 912345678", req.CustomerPhone)
	assert.Equal(t, 2, req.VehicleCount)
	assert.Equal(t, "1 x Premium Van (6) + 1 x Tuk Tuk (2)", req.VehicleSummary)
	assert.Equal(t, models.PickupStatusPending, req.Status)
	assert.Nil(t, req.BookingID)
	require.NotNil(t, req.Destination)
	assert.Equal(t, "Sintra Train Station", *req.Destination)

	require.Len(t, gw.messages, 1)
	assert.Equal(t, "+351 912345678", gw.phones[0])
	assert.Contains(t, gw.messages[0], "Pena Palace")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PickupRequests.WithLabelValues("created")))
}

func TestCreatePickupRequestBookingLink(t *testing.T) {
	t.Run("payload booking code", func(t *testing.T) {
		svc, _ := newTestPickupService(&fakePickupStore{}, nil)
		in := validPickup()
		in.BookingID = "ab-1234"

		req, err := svc.CreateRequest(context.Background(), in, "")
		require.NoError(t, err)
		require.NotNil(t, req.BookingID)
		assert.Equal(t, "AB-1234", *req.BookingID)
	})

	t.Run("session booking wins over payload", func(t *testing.T) {
		svc, _ := newTestPickupService(&fakePickupStore{}, nil)
		in := validPickup()
		in.BookingID = "ZZ-0000"

		req, err := svc.CreateRequest(context.Background(), in, "AB-1234")
		require.NoError(t, err)
		assert.Equal(t, "AB-1234", *req.BookingID)
	})

	t.Run("unknown booking code", func(t *testing.T) {
		svc, _ := newTestPickupService(&fakePickupStore{}, nil)
		in := validPickup()
		in.BookingID = "ZZ-0000"

		_, err := svc.CreateRequest(context.Background(), in, "")
		var vErr *PickupValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "booking_id", vErr.Field)
	})
}

func TestCreatePickupRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.CreatePickupRequest)
		field  string
	}{
		{"blank name", func(r *models.CreatePickupRequest) { r.CustomerName = "  " }, "customer_name"},
		{"phone without country code", func(r *models.CreatePickupRequest) { r.CustomerPhone = "912345678" }, "customer_phone"},
		{"unknown location", func(r *models.CreatePickupRequest) { r.PickupLocation = "Lisbon Airport" }, "pickup_location"},
		{"destination equals pickup", func(r *models.CreatePickupRequest) { r.Destination = "Pena Palace" }, "destination"},
		{"zero group", func(r *models.CreatePickupRequest) { r.GroupSize = 0 }, "group_size"},
		{"oversized group", func(r *models.CreatePickupRequest) { r.GroupSize = 51 }, "group_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakePickupStore{}
			svc, m := newTestPickupService(store, nil)
			in := validPickup()
			tt.mutate(in)

			_, err := svc.CreateRequest(context.Background(), in, "")
			var vErr *PickupValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, store.created)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.PickupRequests.WithLabelValues("rejected")))
		})
	}
}

func TestCreatePickupRequestSMSFailureIsNotFatal(t *testing.T) {
	gw := &recordingGateway{err: errors.New("gateway down")}
	svc, _ := newTestPickupService(&fakePickupStore{}, gw)

	req, err := svc.CreateRequest(context.Background(), validPickup(), "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Len(t, gw.messages, 1)
}

func TestCreatePickupRequestStoreError(t *testing.T) {
	store := &fakePickupStore{err: errors.New("insert failed")}
	svc, m := newTestPickupService(store, nil)

	_, err := svc.CreateRequest(context.Background(), validPickup(), "")
	assert.EqualError(t, err, "insert failed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PickupRequests.WithLabelValues("error")))
}

package pickup

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/internal/dispatch"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/session"
)

type staticIdentity struct {
	id session.Identity
}

func (s staticIdentity) Identity(context.Context) (session.Identity, error) {
	return s.id, nil
}

type fakeCollaborator struct {
	mu         sync.Mutex
	verifyResp *models.VerifyCodeResponse
	verifyErr  error
	codes      []string

	createResp *models.CreatePickupResponse
	createErr  error
	requests   []models.CreatePickupRequest
	started    chan struct{}
	release    chan struct{}
}

func (c *fakeCollaborator) VerifyBookingCode(_ context.Context, code string) (*models.VerifyCodeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return c.verifyResp, c.verifyErr
}

func (c *fakeCollaborator) CreatePickupRequest(_ context.Context, req models.CreatePickupRequest) (*models.CreatePickupResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.started != nil {
		c.started <- struct{}{}
		<-c.release
	}
	return c.createResp, c.createErr
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func activeSession() session.Identity {
	return session.SessionIdentity{Session: session.Session{
		BookingID:     "AB-1234",
		CustomerName:  "Ana Silva",
		CustomerPhone: "+351 912345678",
		Passes:        3,
	}}
}

func accepted(id string) *models.CreatePickupResponse {
	return &models.CreatePickupResponse{
		Success: true,
		Request: &models.PickupRequestRef{ID: id, Status: models.PickupStatusPending},
	}
}

func TestStartWithSessionSkipsVerify(t *testing.T) {
	f := NewFlow(&fakeCollaborator{}, &fakeCollaborator{}, staticIdentity{activeSession()}, 0, testLogger())

	state, err := f.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRequest, state)

	form := f.Form()
	assert.Equal(t, "AB-1234", form.BookingID)
	assert.Equal(t, "Ana Silva", form.CustomerName)
	assert.Equal(t, "+351", form.PhonePrefix)
	assert.Equal(t, "912345678", form.PhoneNumber)
	assert.Equal(t, 3, form.GroupSize)
	assert.Equal(t, "We'll send a UMM Jeep for your group of 3.", f.Guidance())
}

func TestVerifyCode(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty code rejected locally", func(t *testing.T) {
		collab := &fakeCollaborator{}
		f := NewFlow(collab, collab, staticIdentity{session.Anonymous{}}, 0, testLogger())
		_, err := f.Start(ctx)
		require.NoError(t, err)

		var verr *ValidationError
		require.ErrorAs(t, f.VerifyCode(ctx, "   "), &verr)
		assert.Empty(t, collab.codes)
		assert.Equal(t, StateVerify, f.State())
	})

	t.Run("Transport failure and invalid code differ", func(t *testing.T) {
		collab := &fakeCollaborator{verifyErr: errors.New("dial tcp: i/o timeout")}
		f := NewFlow(collab, collab, staticIdentity{session.Anonymous{}}, 0, testLogger())
		_, err := f.Start(ctx)
		require.NoError(t, err)

		err = f.VerifyCode(ctx, "ab-1234")
		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, StateVerify, f.State())

		collab.verifyErr = nil
		collab.verifyResp = &models.VerifyCodeResponse{Success: false}
		err = f.VerifyCode(ctx, "ab-1234")
		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "invalid booking code", verr.Error())
		assert.NotEqual(t, ErrConnection.Error(), verr.Error())
		assert.Equal(t, StateVerify, f.State())
		assert.Equal(t, []string{"AB-1234", "AB-1234"}, collab.codes)
	})

	t.Run("Accepted code prefills the form", func(t *testing.T) {
		collab := &fakeCollaborator{verifyResp: &models.VerifyCodeResponse{
			Success: true,
			Booking: &models.SessionBooking{BookingID: "AB-1234", CustomerName: "Rui Costa", CustomerPhone: "+44 7700900123", Passes: 8},
		}}
		f := NewFlow(collab, collab, staticIdentity{session.Anonymous{}}, 0, testLogger())
		_, err := f.Start(ctx)
		require.NoError(t, err)

		require.NoError(t, f.VerifyCode(ctx, " ab-1234 "))
		assert.Equal(t, StateRequest, f.State())

		form := f.Form()
		assert.Equal(t, "Rui Costa", form.CustomerName)
		assert.Equal(t, "+44", form.PhonePrefix)
		assert.Equal(t, 8, form.GroupSize)

		alloc := f.Allocation()
		assert.Equal(t, 2, alloc.VehicleCount)
		assert.Equal(t, dispatch.PremiumVan, alloc.Fleet[0].Class)
		assert.Equal(t, dispatch.TukTuk, alloc.Fleet[1].Class)
	})
}

func TestFormEditing(t *testing.T) {
	f := NewFlow(&fakeCollaborator{}, &fakeCollaborator{}, staticIdentity{activeSession()}, 0, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)

	t.Run("Group size clamps and recomputes guidance", func(t *testing.T) {
		n, err := f.SetGroupSize(0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, f.Allocation().VehicleCount)

		n, err = f.SetGroupSize(99)
		require.NoError(t, err)
		assert.Equal(t, 50, n)

		_, err = f.SetGroupSize(7)
		require.NoError(t, err)
		assert.True(t, f.Allocation().IsMultiVehicle())
		assert.Contains(t, f.Guidance(), "2 vehicles")
	})

	t.Run("Pickup location from the fixed set", func(t *testing.T) {
		var verr *ValidationError
		require.ErrorAs(t, f.SetPickupLocation("Lisbon Airport"), &verr)
		require.NoError(t, f.SetPickupLocation("Pena Palace"))
	})

	t.Run("Destination must differ", func(t *testing.T) {
		var verr *ValidationError
		require.ErrorAs(t, f.SetDestination("Pena Palace"), &verr)
		require.NoError(t, f.SetDestination("Cabo da Roca"))
		require.ErrorAs(t, f.SetPickupLocation("Cabo da Roca"), &verr)
		require.NoError(t, f.SetDestination(""))
	})

	t.Run("Phone prefix validated", func(t *testing.T) {
		var verr *ValidationError
		require.ErrorAs(t, f.SetPhone("351", "912345678"), &verr)
		assert.Equal(t, "phone_prefix", verr.Field)
		require.ErrorAs(t, f.SetPhone("+123456", "912345678"), &verr)
		require.ErrorAs(t, f.SetPhone("+351", "91x"), &verr)
		assert.Equal(t, "phone_number", verr.Field)
		require.NoError(t, f.SetPhone("+34", "600 123 456"))
		assert.Equal(t, "600123456", f.Form().PhoneNumber)
	})
}

func TestSubmitSuccess(t *testing.T) {
	collab := &fakeCollaborator{createResp: accepted("req-1")}
	f := NewFlow(collab, collab, staticIdentity{activeSession()}, 5*time.Millisecond, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SetPickupLocation("Pena Palace"))
	require.NoError(t, f.SetDestination("Moorish Castle"))

	started := time.Now()
	ref, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 5*time.Millisecond)

	assert.Equal(t, "req-1", ref.ID)
	assert.Equal(t, StateConfirmed, f.State())
	assert.Equal(t, ref, f.Request())

	require.Len(t, collab.requests, 1)
	req := collab.requests[0]
	assert.Equal(t, "AB-1234", req.BookingID)
	assert.Equal(t, "+351 912345678", req.CustomerPhone)
	assert.Equal(t, 3, req.GroupSize)
	assert.Equal(t, "Moorish Castle", req.Destination)

	t.Run("Request another keeps session identity", func(t *testing.T) {
		require.NoError(t, f.RequestAnother())
		assert.Equal(t, StateRequest, f.State())
		form := f.Form()
		assert.Equal(t, "Ana Silva", form.CustomerName)
		assert.Equal(t, "912345678", form.PhoneNumber)
		assert.Equal(t, 1, form.GroupSize)
		assert.Empty(t, form.PickupLocation)
		assert.Empty(t, form.Destination)
		assert.Nil(t, f.Request())
	})
}

func TestSubmitFailureKeepsForm(t *testing.T) {
	tests := []struct {
		name       string
		resp       *models.CreatePickupResponse
		err        error
		wantReason string
	}{
		{"success false", &models.CreatePickupResponse{Success: false, Error: "no vehicles available"}, nil, "no vehicles available"},
		{"success false without message", &models.CreatePickupResponse{Success: false}, nil, "your pickup request was not accepted, please try again"},
		{"transport error", nil, errors.New("connection refused"), ErrConnection.Error()},
		{"success without reference", &models.CreatePickupResponse{Success: true}, nil, "your pickup request was not accepted, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collab := &fakeCollaborator{createResp: tt.resp, createErr: tt.err}
			f := NewFlow(collab, collab, staticIdentity{activeSession()}, time.Hour, testLogger())
			_, err := f.Start(context.Background())
			require.NoError(t, err)
			_, err = f.SetGroupSize(8)
			require.NoError(t, err)
			require.NoError(t, f.SetPickupLocation("Sintra Train Station"))

			_, err = f.Submit(context.Background())
			var serr *SubmitError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.wantReason, serr.Reason)
			assert.Equal(t, tt.wantReason, f.LastError())

			assert.Equal(t, StateRequest, f.State())
			form := f.Form()
			assert.Equal(t, 8, form.GroupSize)
			assert.Equal(t, "Sintra Train Station", form.PickupLocation)
			assert.Equal(t, "Ana Silva", form.CustomerName)
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	collab := &fakeCollaborator{createResp: accepted("req-1")}
	f := NewFlow(collab, collab, staticIdentity{activeSession()}, 0, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)

	_, err = f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pickup_location", verr.Field)
	assert.Empty(t, collab.requests)
	assert.Equal(t, StateRequest, f.State())
}

func TestSubmitConcurrencyAndStaleResponse(t *testing.T) {
	collab := &fakeCollaborator{
		createResp: accepted("req-1"),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	f := NewFlow(collab, collab, staticIdentity{activeSession()}, 0, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SetPickupLocation("Pena Palace"))

	errCh := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		errCh <- err
	}()
	<-collab.started
	assert.Equal(t, StateSearching, f.State())

	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	f.Reset()
	close(collab.release)

	assert.ErrorIs(t, <-errCh, ErrDiscarded)
	assert.Equal(t, StateVerify, f.State())
	assert.Nil(t, f.Request())
}

func TestRestartWhileSubmitInFlight(t *testing.T) {
	collab := &fakeCollaborator{
		createResp: accepted("req-1"),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	f := NewFlow(collab, collab, staticIdentity{activeSession()}, 0, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SetPickupLocation("Pena Palace"))

	errCh := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		errCh <- err
	}()
	<-collab.started

	state, err := f.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRequest, state)
	require.NoError(t, f.SetPickupLocation("Pena Palace"))

	// the stale call still owns the flow until it returns
	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(collab.release)
	assert.ErrorIs(t, <-errCh, ErrDiscarded)
	assert.Len(t, collab.requests, 1)
}

func TestWrongState(t *testing.T) {
	f := NewFlow(&fakeCollaborator{}, &fakeCollaborator{}, staticIdentity{session.Anonymous{}}, 0, testLogger())
	_, err := f.Start(context.Background())
	require.NoError(t, err)

	_, err = f.SetGroupSize(3)
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)
	assert.ErrorIs(t, f.RequestAnother(), ErrWrongState)
}

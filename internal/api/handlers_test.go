package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediflow/booking-service/internal/booking"
)

// stubRepo satisfies booking.Repository for the handler paths under test.
// Methods not overridden panic through the nil embedded interface, which
// makes an unexpected repository call an immediate test failure.
type stubRepo struct {
	booking.Repository

	service   *booking.MedicalService
	existing  *booking.Appointment
	createErr error
	created   *booking.Appointment
	rules     []booking.AvailabilityRule
	booked    []string
}

func (s *stubRepo) GetServiceByID(_ context.Context, id uuid.UUID) (*booking.MedicalService, error) {
	if s.service == nil || s.service.ID != id {
		return nil, booking.ErrServiceNotFound
	}
	cp := *s.service
	return &cp, nil
}

func (s *stubRepo) GetScheduledForPair(context.Context, uuid.UUID, uuid.UUID) (*booking.Appointment, error) {
	if s.existing == nil {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *s.existing
	return &cp, nil
}

func (s *stubRepo) FindCancelledAtSlot(context.Context, uuid.UUID, string, string) (*booking.Appointment, error) {
	return nil, booking.ErrAppointmentNotFound
}

func (s *stubRepo) CreateAppointment(_ context.Context, appt *booking.Appointment) (*booking.Appointment, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	cp := *appt
	cp.ID = uuid.New()
	cp.Status = booking.StatusScheduled
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.created = &cp
	return &cp, nil
}

func (s *stubRepo) ListAvailabilityRules(context.Context, uuid.UUID) ([]booking.AvailabilityRule, error) {
	return s.rules, nil
}

func (s *stubRepo) ListBookedTimes(context.Context, uuid.UUID, string) ([]string, error) {
	return s.booked, nil
}

type passLock struct{}

func (passLock) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type routerEnv struct {
	handler http.Handler
	repo    *stubRepo
	doctor  uuid.UUID
	patient uuid.UUID
	service uuid.UUID
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	doctorID := uuid.New()
	serviceID := uuid.New()

	repo := &stubRepo{
		service: &booking.MedicalService{
			ID:       serviceID,
			DoctorID: doctorID,
			Name:     "Consultation",
			Price:    5000,
		},
	}

	svc := booking.NewService(repo, passLock{}, booking.NewSlotEnumerator(30*time.Minute), 60, zerolog.Nop())

	handler := NewRouter(RouterConfig{
		Service:   svc,
		Logger:    zerolog.Nop(),
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
	})

	return &routerEnv{
		handler: handler,
		repo:    repo,
		doctor:  doctorID,
		patient: uuid.New(),
		service: serviceID,
	}
}

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *routerEnv) patientToken(t *testing.T) string {
	return signTestToken(t, testSecret, e.patient.String(), "patient")
}

// bookableDate picks a date inside the booking window relative to the real
// clock, since the router path has no injectable clock.
func bookableDate() string {
	return time.Now().AddDate(0, 0, 7).Format("2006-01-02")
}

func TestBookAppointment_Created(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments", env.patientToken(t), map[string]any{
		"doctor_id":   env.doctor.String(),
		"service_id":  env.service.String(),
		"date":        bookableDate(),
		"time":        "09:00",
		"is_for_self": true,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res BookingOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "success", res.Outcome)
	require.NotNil(t, res.Appointment)
	assert.Equal(t, env.patient, res.Appointment.PatientID)
	assert.Equal(t, int64(5000), res.Appointment.Price)
	assert.Equal(t, "scheduled", res.Appointment.Status)
	assert.Nil(t, res.Existing)
}

func TestBookAppointment_ExistingAppointmentOutcome(t *testing.T) {
	env := newRouterEnv(t)
	env.repo.existing = &booking.Appointment{
		ID:              uuid.New(),
		DoctorID:        env.doctor,
		PatientID:       env.patient,
		ServiceID:       env.service,
		AppointmentDate: bookableDate(),
		AppointmentTime: "10:00",
		Status:          booking.StatusScheduled,
	}

	rec := env.do(t, http.MethodPost, "/appointments", env.patientToken(t), map[string]any{
		"doctor_id":   env.doctor.String(),
		"service_id":  env.service.String(),
		"date":        bookableDate(),
		"time":        "09:00",
		"is_for_self": true,
	})

	require.Equal(t, http.StatusConflict, rec.Code)

	var res BookingOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "existing_appointment", res.Outcome)
	require.NotNil(t, res.Existing)
	assert.Equal(t, env.repo.existing.ID, res.Existing.ID)
	assert.Nil(t, res.Appointment)
}

func TestBookAppointment_SlotConflictOutcome(t *testing.T) {
	env := newRouterEnv(t)
	env.repo.createErr = booking.ErrSlotTaken

	rec := env.do(t, http.MethodPost, "/appointments", env.patientToken(t), map[string]any{
		"doctor_id":   env.doctor.String(),
		"service_id":  env.service.String(),
		"date":        bookableDate(),
		"time":        "09:00",
		"is_for_self": true,
	})

	require.Equal(t, http.StatusConflict, rec.Code)

	var res BookingOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "slot_conflict", res.Outcome)
	assert.Nil(t, res.Appointment)
}

func TestBookAppointment_RequestValidation(t *testing.T) {
	env := newRouterEnv(t)
	token := env.patientToken(t)

	valid := func() map[string]any {
		return map[string]any{
			"doctor_id":   env.doctor.String(),
			"service_id":  env.service.String(),
			"date":        bookableDate(),
			"time":        "09:00",
			"is_for_self": true,
		}
	}

	t.Run("malformed json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{not json"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("doctor_id not a uuid", func(t *testing.T) {
		body := valid()
		body["doctor_id"] = "doc-1"
		rec := env.do(t, http.MethodPost, "/appointments", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("date in wrong format", func(t *testing.T) {
		body := valid()
		body["date"] = "07/15/2026"
		rec := env.do(t, http.MethodPost, "/appointments", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("beneficiary required when not for self", func(t *testing.T) {
		body := valid()
		body["is_for_self"] = false
		rec := env.do(t, http.MethodPost, "/appointments", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var errRes ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errRes))
		assert.Equal(t, "validation_error", errRes.Error)
	})

	t.Run("no token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/appointments", "", valid())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetAvailableTimes(t *testing.T) {
	env := newRouterEnv(t)
	env.repo.rules = []booking.AvailabilityRule{
		{DoctorID: env.doctor, DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30", IsActive: true},
	}
	env.repo.booked = []string{"09:30"}
	token := env.patientToken(t)

	// 2026-01-05 is a Monday.
	rec := env.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/available-times?date=2026-01-05", env.doctor), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res TimesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"09:00", "10:00"}, res.Times)

	t.Run("missing date", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/available-times", env.doctor), token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad doctor id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/doctors/nope/available-times?date=2026-01-05", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable date", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/available-times?date=January", env.doctor), token, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestTransitionHandler_BadAppointmentID(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments/not-a-uuid/cancel", env.patientToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, http.StatusCreated, outcomeStatus(booking.OutcomeSuccess, http.StatusCreated))
	assert.Equal(t, http.StatusOK, outcomeStatus(booking.OutcomeSuccess, http.StatusOK))
	assert.Equal(t, http.StatusConflict, outcomeStatus(booking.OutcomeSlotConflict, http.StatusCreated))
	assert.Equal(t, http.StatusConflict, outcomeStatus(booking.OutcomeExistingAppointment, http.StatusCreated))
}

func TestHandleDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", fmt.Errorf("wrap: %w", booking.ErrInvalidInput), http.StatusUnprocessableEntity, "validation_error"},
		{"not authorized", booking.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
		{"invalid transition", booking.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
		{"appointment not found", fmt.Errorf("load: %w", booking.ErrAppointmentNotFound), http.StatusNotFound, "not_found"},
		{"service not found", booking.ErrServiceNotFound, http.StatusNotFound, "not_found"},
		{"slot being booked", booking.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{"unknown error", fmt.Errorf("pg: connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleDomainError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var res ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantCode, res.Error)
		})
	}
}

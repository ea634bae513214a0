package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mediflow/booking-service/internal/booking"
)

var validate = validator.New()

type BookAppointmentRequest struct {
	DoctorID         string `json:"doctor_id" validate:"required,uuid"`
	ServiceID        string `json:"service_id" validate:"required,uuid"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Time             string `json:"time" validate:"required,datetime=15:04"`
	IsForSelf        bool   `json:"is_for_self"`
	BeneficiaryName  string `json:"beneficiary_name" validate:"required_if=IsForSelf false"`
	BeneficiaryPhone string `json:"beneficiary_phone" validate:"required_if=IsForSelf false"`
}

type RescheduleAppointmentRequest struct {
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Time             string `json:"time" validate:"required,datetime=15:04"`
	IsForSelf        bool   `json:"is_for_self"`
	BeneficiaryName  string `json:"beneficiary_name" validate:"required_if=IsForSelf false"`
	BeneficiaryPhone string `json:"beneficiary_phone" validate:"required_if=IsForSelf false"`
}

type AvailabilityRuleRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	IsActive  bool   `json:"is_active"`
}

type ReplaceAvailabilityRequest struct {
	Rules []AvailabilityRuleRequest `json:"rules" validate:"dive"`
}

type AppointmentResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	ServiceID        uuid.UUID `json:"service_id"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	Status           string    `json:"status"`
	Price            int64     `json:"price"`
	IsForSelf        bool      `json:"is_for_self"`
	BeneficiaryName  *string   `json:"beneficiary_name,omitempty"`
	BeneficiaryPhone *string   `json:"beneficiary_phone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BookingOutcomeResponse mirrors the service's discriminated booking result
// so the client can branch on outcome without parsing error text.
type BookingOutcomeResponse struct {
	Outcome     string               `json:"outcome"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	Existing    *AppointmentResponse `json:"existing,omitempty"`
}

type DatesResponse struct {
	Dates []string `json:"dates"`
}

type TimesResponse struct {
	Times []string `json:"times"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		ServiceID:        a.ServiceID,
		Date:             a.AppointmentDate,
		Time:             a.AppointmentTime,
		Status:           string(a.Status),
		Price:            a.Price,
		IsForSelf:        a.IsForSelf,
		BeneficiaryName:  a.BeneficiaryName,
		BeneficiaryPhone: a.BeneficiaryPhone,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toBookingOutcomeResponse(res *booking.BookingResult) BookingOutcomeResponse {
	return BookingOutcomeResponse{
		Outcome:     string(res.Outcome),
		Appointment: toAppointmentResponse(res.Appointment),
		Existing:    toAppointmentResponse(res.Existing),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when the storage layer's partial unique index
	// on (doctor_id, appointment_date, appointment_time) WHERE
	// status='scheduled' rejects a write. The constraint, not the
	// application pre-check, is the source of truth for slot uniqueness.
	ErrSlotTaken = errors.New("slot already has a scheduled appointment")

	// ErrPairTaken is the storage-level rejection of a second scheduled
	// appointment for the same (doctor, patient) pair.
	ErrPairTaken = errors.New("patient already has a scheduled appointment with this doctor")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*MedicalService, error)

	// Availability rules are replaced wholesale per save.
	ListAvailabilityRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error)
	ReplaceAvailabilityRules(ctx context.Context, doctorID uuid.UUID, rules []AvailabilityRule) error

	// For slot enumeration: HH:MM times of scheduled rows only.
	ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)

	// For conflict checks.
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetScheduledForPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Appointment, error)
	FindCancelledAtSlot(ctx context.Context, doctorID uuid.UUID, date, clock string) (*Appointment, error)

	// Creation and updates. Unique-constraint violations surface as
	// ErrSlotTaken / ErrPairTaken.
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, date, clock string, isForSelf bool, beneficiaryName, beneficiaryPhone *string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// DeleteAppointmentWithStatus deletes the row only while it still holds
	// the given status; a zero-row delete reports ErrAppointmentNotFound.
	DeleteAppointmentWithStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error

	// PurgeUserAppointments removes every appointment where the user is the
	// patient party and, when alsoDoctor is set, every one where they are
	// the doctor party. Both branches run in one transaction.
	PurgeUserAppointments(ctx context.Context, userID uuid.UUID, alsoDoctor bool) error

	ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error)
}

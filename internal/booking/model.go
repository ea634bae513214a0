package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Actor is the authenticated party performing an operation. Identity is
// always passed in explicitly; the service never reads it from ambient state.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MedicalService is a procedure a doctor offers. Its price is snapshotted
// onto the appointment at booking time, never looked up live afterwards.
type MedicalService struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	Name            string
	Price           int64
	DurationMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvailabilityRule is one recurring weekly block a doctor is open for
// bookings. DayOfWeek is Sunday-indexed (0=Sunday .. 6=Saturday), StartTime
// and EndTime are local HH:MM clock strings with StartTime < EndTime.
// Rules for the same weekday may overlap; overlaps are deduplicated during
// slot enumeration.
type AvailabilityRule struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	DayOfWeek int
	StartTime string
	EndTime   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	ServiceID        uuid.UUID
	AppointmentDate  string // YYYY-MM-DD
	AppointmentTime  string // HH:MM
	Status           AppointmentStatus
	Price            int64
	IsForSelf        bool
	BeneficiaryName  *string
	BeneficiaryPhone *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SlotKey identifies the slot an appointment occupies, used for distributed
// lock keys.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.DoctorID, a.AppointmentDate, a.AppointmentTime)
}

func SlotKey(doctorID uuid.UUID, date, clock string) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, date, clock)
}

var ErrInvalidInput = errors.New("invalid input")

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidInput, s)
	}
	return t, nil
}

func ParseClock(s string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time must be HH:MM, got %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Validate checks the rule's structural invariants.
func (r AvailabilityRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0-6, got %d", ErrInvalidInput, r.DayOfWeek)
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_time %s must be before end_time %s", ErrInvalidInput, r.StartTime, r.EndTime)
	}
	return nil
}

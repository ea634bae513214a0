package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/mediflow/booking-service/internal/redis"
)

var (
	ErrNotAuthorized = errors.New("actor is not allowed to perform this transition")

	// ErrInvalidTransition covers status writes that lost a race with
	// another transition, e.g. completing an already cancelled appointment.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSlotBeingBooked is surfaced when another booking attempt currently
	// holds the lock for the target slot.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
)

// BookingOutcome discriminates the result of a booking attempt so callers
// can branch without inspecting error internals.
type BookingOutcome string

const (
	OutcomeSuccess             BookingOutcome = "success"
	OutcomeExistingAppointment BookingOutcome = "existing_appointment"
	OutcomeSlotConflict        BookingOutcome = "slot_conflict"
)

// BookingResult is the discriminated union returned by AttemptBooking and
// RescheduleExisting. Appointment is set on success; Existing is set when the
// patient already holds a scheduled appointment with the doctor and must
// choose between continuing (abandoning the attempt) and rescheduling.
type BookingResult struct {
	Outcome     BookingOutcome
	Appointment *Appointment
	Existing    *Appointment
}

type BookingRequest struct {
	Actor            Actor
	DoctorID         uuid.UUID
	ServiceID        uuid.UUID
	Date             string // YYYY-MM-DD
	Time             string // HH:MM
	IsForSelf        bool
	BeneficiaryName  string
	BeneficiaryPhone string
}

type RescheduleRequest struct {
	Actor            Actor
	AppointmentID    uuid.UUID
	Date             string
	Time             string
	IsForSelf        bool
	BeneficiaryName  string
	BeneficiaryPhone string
}

// Service is the booking decision core: it computes offered dates and slots,
// adjudicates booking conflicts, and owns the appointment status machine.
type Service struct {
	repo        Repository
	locker      redisclient.Locker
	enumerator  SlotEnumerator
	horizonDays int
	logger      zerolog.Logger

	// now is swapped in tests to pin the booking horizon.
	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, enumerator SlotEnumerator, horizonDays int, logger zerolog.Logger) *Service {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		enumerator:  enumerator,
		horizonDays: horizonDays,
		logger:      logger,
		now:         time.Now,
	}
}

// GetAvailableDates returns the bookable dates for a doctor, bounded by the
// configured horizon and the doctor's weekly availability rules.
func (s *Service) GetAvailableDates(ctx context.Context, doctorID uuid.UUID) ([]string, error) {
	rules, err := s.repo.ListAvailabilityRules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return GenerateAvailableDates(rules, s.now(), s.horizonDays), nil
}

// GetAvailableTimes returns the open slots for a doctor on one date. Only
// scheduled appointments block a slot; cancelled and completed rows never do.
func (s *Service) GetAvailableTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	rules, err := s.repo.ListAvailabilityRules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}

	bookedTimes, err := s.repo.ListBookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}

	booked := make(map[string]bool, len(bookedTimes))
	for _, t := range bookedTimes {
		booked[t] = true
	}

	return s.enumerator.Enumerate(day.Weekday(), rules, booked), nil
}

// AttemptBooking runs one booking attempt for the acting patient. The
// existing-appointment check intercepts the attempt before any write: a
// patient holding a scheduled appointment with this doctor gets the
// existing_appointment outcome and must explicitly reschedule instead. A
// cancelled row occupying the target slot is deleted before the insert so
// the vacated slot is reusable without leaving a historical duplicate.
func (s *Service) AttemptBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if req.Actor.Role != RolePatient {
		return nil, ErrNotAuthorized
	}

	if err := s.validateSlotTarget(req.Date, req.Time); err != nil {
		return nil, err
	}
	beneficiaryName, beneficiaryPhone, err := resolveBeneficiary(req.IsForSelf, req.BeneficiaryName, req.BeneficiaryPhone)
	if err != nil {
		return nil, err
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.DoctorID != req.DoctorID {
		return nil, fmt.Errorf("%w: service does not belong to this doctor", ErrInvalidInput)
	}

	existing, err := s.repo.GetScheduledForPair(ctx, req.DoctorID, req.Actor.UserID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check existing appointment: %w", err)
	}
	if existing != nil {
		s.logger.Debug().
			Str("doctor_id", req.DoctorID.String()).
			Str("patient_id", req.Actor.UserID.String()).
			Str("existing_id", existing.ID.String()).
			Msg("booking intercepted by existing scheduled appointment")
		return &BookingResult{Outcome: OutcomeExistingAppointment, Existing: existing}, nil
	}

	var created *Appointment

	slotKey := SlotKey(req.DoctorID, req.Date, req.Time)
	err = s.locker.WithSlotLock(ctx, slotKey, func(lockCtx context.Context) error {
		if err := s.resurrectSlot(lockCtx, req.DoctorID, req.Date, req.Time); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			DoctorID:         req.DoctorID,
			PatientID:        req.Actor.UserID,
			ServiceID:        req.ServiceID,
			AppointmentDate:  req.Date,
			AppointmentTime:  req.Time,
			Price:            svc.Price,
			IsForSelf:        req.IsForSelf,
			BeneficiaryName:  beneficiaryName,
			BeneficiaryPhone: beneficiaryPhone,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	if err != nil {
		return s.mapCommitError(err, slotKey)
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot", slotKey).
		Msg("appointment booked")

	return &BookingResult{Outcome: OutcomeSuccess, Appointment: created}, nil
}

// RescheduleExisting converts the patient's existing scheduled appointment in
// place: the row keeps its id and service, only the slot and beneficiary
// fields change. This is the only path past the existing-appointment
// intercept, so the one-active-appointment invariant is preserved.
func (s *Service) RescheduleExisting(ctx context.Context, req RescheduleRequest) (*BookingResult, error) {
	if req.Actor.Role != RolePatient {
		return nil, ErrNotAuthorized
	}

	if err := s.validateSlotTarget(req.Date, req.Time); err != nil {
		return nil, err
	}
	beneficiaryName, beneficiaryPhone, err := resolveBeneficiary(req.IsForSelf, req.BeneficiaryName, req.BeneficiaryPhone)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.PatientID != req.Actor.UserID {
		return nil, ErrNotAuthorized
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment

	slotKey := SlotKey(appt.DoctorID, req.Date, req.Time)
	err = s.locker.WithSlotLock(ctx, slotKey, func(lockCtx context.Context) error {
		if err := s.resurrectSlot(lockCtx, appt.DoctorID, req.Date, req.Time); err != nil {
			return err
		}

		upd, err := s.repo.UpdateAppointmentSlot(lockCtx, appt.ID, req.Date, req.Time, req.IsForSelf, beneficiaryName, beneficiaryPhone)
		if err != nil {
			return err
		}
		updated = upd
		return nil
	})

	if err != nil {
		return s.mapCommitError(err, slotKey)
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("slot", slotKey).
		Msg("appointment rescheduled")

	return &BookingResult{Outcome: OutcomeSuccess, Appointment: updated}, nil
}

// resurrectSlot deletes a stale cancelled row occupying the target slot so
// the new scheduled row can take its place.
func (s *Service) resurrectSlot(ctx context.Context, doctorID uuid.UUID, date, clock string) error {
	stale, err := s.repo.FindCancelledAtSlot(ctx, doctorID, date, clock)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil
		}
		return fmt.Errorf("find cancelled appointment: %w", err)
	}

	if err := s.repo.DeleteAppointmentWithStatus(ctx, stale.ID, StatusCancelled); err != nil {
		// Already gone counts as resurrected.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil
		}
		return fmt.Errorf("delete cancelled appointment: %w", err)
	}

	s.logger.Debug().
		Str("appointment_id", stale.ID.String()).
		Msg("cancelled appointment removed to free slot")
	return nil
}

// mapCommitError folds lock contention and unique-constraint races into the
// slot_conflict outcome; everything else propagates as a storage error.
func (s *Service) mapCommitError(err error, slotKey string) (*BookingResult, error) {
	switch {
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrPairTaken):
		s.logger.Info().Str("slot", slotKey).Msg("commit lost slot race")
		return &BookingResult{Outcome: OutcomeSlotConflict}, nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.logger.Info().Str("slot", slotKey).Msg("slot lock contention")
		return &BookingResult{Outcome: OutcomeSlotConflict}, nil
	default:
		return nil, err
	}
}

// CompleteAppointment moves a scheduled appointment to completed. Only the
// doctor party may complete.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, actor Actor) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if actor.Role != RoleDoctor || appt.DoctorID != actor.UserID {
		return ErrNotAuthorized
	}
	if appt.Status != StatusScheduled {
		return ErrInvalidTransition
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCompleted); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("complete appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment completed")
	return nil
}

// CancelAppointment moves a scheduled appointment to cancelled. Either party
// may cancel; enumeration only counts scheduled rows, so the slot becomes
// bookable again immediately.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !isParty(appt, actor) {
		return ErrNotAuthorized
	}
	if appt.Status != StatusScheduled {
		return ErrInvalidTransition
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCancelled); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("slot", appt.SlotKey()).Msg("appointment cancelled")
	return nil
}

// DeleteAppointment permanently removes a cancelled appointment. This is the
// patient's history-cleanup action; there is no undo and no way back to
// scheduled.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID, actor Actor) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if actor.Role != RolePatient || appt.PatientID != actor.UserID {
		return ErrNotAuthorized
	}
	if appt.Status != StatusCancelled {
		return ErrInvalidTransition
	}

	if err := s.repo.DeleteAppointmentWithStatus(ctx, id, StatusCancelled); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", id.String()).Msg("cancelled appointment deleted")
	return nil
}

// PurgeUserAppointments removes every appointment the actor is a party to,
// across all statuses. The patient-side and doctor-side deletes run in one
// transaction: either both branches commit or neither does.
func (s *Service) PurgeUserAppointments(ctx context.Context, actor Actor) error {
	if err := s.repo.PurgeUserAppointments(ctx, actor.UserID, actor.Role == RoleDoctor); err != nil {
		return fmt.Errorf("purge appointments: %w", err)
	}
	s.logger.Info().Str("user_id", actor.UserID.String()).Str("role", string(actor.Role)).Msg("appointment history purged")
	return nil
}

// ReplaceAvailabilityRules saves a doctor's weekly schedule wholesale.
func (s *Service) ReplaceAvailabilityRules(ctx context.Context, doctorID uuid.UUID, rules []AvailabilityRule, actor Actor) error {
	if actor.Role != RoleDoctor || actor.UserID != doctorID {
		return ErrNotAuthorized
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if err := s.repo.ReplaceAvailabilityRules(ctx, doctorID, rules); err != nil {
		return fmt.Errorf("replace availability rules: %w", err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Int("rules", len(rules)).Msg("availability rules replaced")
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(appt, actor) {
		return nil, ErrNotAuthorized
	}
	return appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, actor Actor) ([]Appointment, error) {
	return s.repo.ListPatientAppointments(ctx, actor.UserID)
}

func (s *Service) ListDoctorDay(ctx context.Context, doctorID uuid.UUID, date string, actor Actor) ([]Appointment, error) {
	if actor.Role != RoleDoctor || actor.UserID != doctorID {
		return nil, ErrNotAuthorized
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	return s.repo.ListDoctorAppointments(ctx, doctorID, date)
}

// validateSlotTarget enforces the booking window: well-formed date and time,
// strictly after today, no further out than the horizon.
func (s *Service) validateSlotTarget(date, clock string) error {
	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	if _, err := ParseClock(clock); err != nil {
		return err
	}

	today, _ := time.Parse(DateLayout, s.now().Format(DateLayout))
	if !day.After(today) {
		return fmt.Errorf("%w: bookings start the day after today", ErrInvalidInput)
	}
	if day.After(today.AddDate(0, 0, s.horizonDays)) {
		return fmt.Errorf("%w: date is beyond the %d-day booking horizon", ErrInvalidInput, s.horizonDays)
	}
	return nil
}

// resolveBeneficiary enforces the beneficiary precondition: a booking not
// for the account holder requires a name and phone before commit is
// reachable. Self bookings carry no beneficiary fields.
func resolveBeneficiary(isForSelf bool, name, phone string) (*string, *string, error) {
	if isForSelf {
		return nil, nil, nil
	}
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: beneficiary_name is required when booking for someone else", ErrInvalidInput)
	}
	if phone == "" {
		return nil, nil, fmt.Errorf("%w: beneficiary_phone is required when booking for someone else", ErrInvalidInput)
	}
	return &name, &phone, nil
}

func isParty(appt *Appointment, actor Actor) bool {
	switch actor.Role {
	case RolePatient:
		return appt.PatientID == actor.UserID
	case RoleDoctor:
		return appt.DoctorID == actor.UserID
	}
	return false
}

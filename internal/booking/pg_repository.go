package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintScheduledSlot = "uniq_scheduled_slot"
	constraintScheduledPair = "uniq_scheduled_pair"
)

// apptColumns keeps date and time as the wire-format strings the rest of the
// system speaks (YYYY-MM-DD / HH:MM).
const apptColumns = `
	id, doctor_id, patient_id, service_id,
	to_char(appointment_date, 'YYYY-MM-DD'),
	to_char(appointment_time, 'HH24:MI'),
	status, price, is_for_self, beneficiary_name, beneficiary_phone,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanService(row pgx.Row) (*MedicalService, error) {
	var s MedicalService
	err := row.Scan(&s.ID, &s.DoctorID, &s.Name, &s.Price, &s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ServiceID,
		&a.AppointmentDate,
		&a.AppointmentTime,
		&a.Status,
		&a.Price,
		&a.IsForSelf,
		&a.BeneficiaryName,
		&a.BeneficiaryPhone,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// mapUniqueViolation translates the partial unique indexes into domain
// errors so callers never inspect driver internals.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case constraintScheduledSlot:
			return ErrSlotTaken
		case constraintScheduledPair:
			return ErrPairTaken
		}
		return ErrSlotTaken
	}
	return err
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, name, price, duration_minutes, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) ListAvailabilityRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week,
		       to_char(start_time, 'HH24:MI'),
		       to_char(end_time, 'HH24:MI'),
		       is_active, created_at, updated_at
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		var ar AvailabilityRule
		err := rows.Scan(&ar.ID, &ar.DoctorID, &ar.DayOfWeek, &ar.StartTime, &ar.EndTime, &ar.IsActive, &ar.CreatedAt, &ar.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, ar)
	}
	return result, rows.Err()
}

func (r *PgRepository) ReplaceAvailabilityRules(ctx context.Context, doctorID uuid.UUID, rules []AvailabilityRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace rules: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	for _, rule := range rules {
		id := rule.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, doctor_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4::time, $5::time, $6, now(), now())
		`, id, doctorID, rule.DayOfWeek, rule.StartTime, rule.EndTime, rule.IsActive)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::date
		  AND status = 'scheduled'
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetScheduledForPair(ctx context.Context, doctorID, patientID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND patient_id = $2 AND status = 'scheduled'
	`, doctorID, patientID)
	return scanAppointment(row)
}

func (r *PgRepository) FindCancelledAtSlot(ctx context.Context, doctorID uuid.UUID, date, clock string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::date
		  AND appointment_time = $3::time
		  AND status = 'cancelled'
		LIMIT 1
	`, doctorID, date, clock)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, service_id,
			appointment_date, appointment_time,
			status, price, is_for_self, beneficiary_name, beneficiary_phone,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, 'scheduled', $7, $8, $9, $10, now(), now())
		RETURNING `+apptColumns,
		id, appt.DoctorID, appt.PatientID, appt.ServiceID,
		appt.AppointmentDate, appt.AppointmentTime,
		appt.Price, appt.IsForSelf, appt.BeneficiaryName, appt.BeneficiaryPhone,
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentSlot(ctx context.Context, id uuid.UUID, date, clock string, isForSelf bool, beneficiaryName, beneficiaryPhone *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2::date,
		    appointment_time = $3::time,
		    is_for_self = $4,
		    beneficiary_name = $5,
		    beneficiary_phone = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+apptColumns,
		id, date, clock, isForSelf, beneficiaryName, beneficiaryPhone,
	)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+apptColumns,
		id, to, from,
	)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointmentWithStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1 AND status = $2
	`, id, status)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) PurgeUserAppointments(ctx context.Context, userID uuid.UUID, alsoDoctor bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE patient_id = $1`, userID); err != nil {
		return fmt.Errorf("purge patient appointments: %w", err)
	}
	if alsoDoctor {
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE doctor_id = $1`, userID); err != nil {
			return fmt.Errorf("purge doctor appointments: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date, appointment_time
	`, patientID)
}

func (r *PgRepository) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::date
		ORDER BY appointment_time
	`, doctorID, date)
}

func (r *PgRepository) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

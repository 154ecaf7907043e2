package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activeSlotConstraint is the partial unique index on
// (service_id, scheduled_at) WHERE status IN ('pending', 'confirmed').
// It is the backstop that keeps double-booking impossible across processes
// even when two transactions pass the in-transaction re-check together.
const activeSlotConstraint = "appointments_active_slot_idx"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var bodyPartID *uuid.UUID
	var voyagerID, notes, referralURL *string

	err := row.Scan(
		&a.ID,
		&a.ServiceID,
		&bodyPartID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.Status,
		&voyagerID,
		&notes,
		&referralURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.BodyPartID = bodyPartID
	a.VoyagerAppointmentID = voyagerID
	a.Notes = notes
	a.ReferralURL = referralURL
	return &a, nil
}

const appointmentColumns = `id, service_id, body_part_id, patient_id, scheduled_at, status, voyager_appointment_id, notes, referral_url, created_at, updated_at`

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == activeSlotConstraint
}

// Interface methods

func (r *PgRepository) CreateBooking(ctx context.Context, nb NewBooking) (*Appointment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-check inside the transaction. The partial unique index would catch
	// the race anyway, but this turns most conflicts into a clean SELECT.
	var existing uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE service_id = $1
		  AND scheduled_at = $2
		  AND status IN ('pending', 'confirmed')
	`, nb.ServiceID, nb.ScheduledAt).Scan(&existing)
	if err == nil {
		return nil, ErrSlotTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check slot: %w", err)
	}

	patientID, err := upsertPatient(ctx, tx, nb.Patient)
	if err != nil {
		return nil, fmt.Errorf("upsert patient: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, service_id, body_part_id, patient_id, scheduled_at, status, notes, referral_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), nb.ServiceID, nb.BodyPartID, patientID, nb.ScheduledAt, nb.Notes, nb.ReferralURL)

	appt, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return appt, nil
}

// upsertPatient keys existing patients on lowercased email. Bookings without
// an email always create a fresh row.
func upsertPatient(ctx context.Context, tx pgx.Tx, p PatientDetails) (uuid.UUID, error) {
	var id uuid.UUID

	if p.Email != nil && strings.TrimSpace(*p.Email) != "" {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		err := tx.QueryRow(ctx, `
			INSERT INTO patients (id, title, first_name, last_name, date_of_birth, email, mobile, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (email) DO UPDATE
			SET title = EXCLUDED.title,
			    first_name = EXCLUDED.first_name,
			    last_name = EXCLUDED.last_name,
			    date_of_birth = EXCLUDED.date_of_birth,
			    mobile = EXCLUDED.mobile,
			    updated_at = now()
			RETURNING id
		`, uuid.New(), p.Title, p.FirstName, p.LastName, p.DateOfBirth, email, p.Mobile).Scan(&id)
		return id, err
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO patients (id, title, first_name, last_name, date_of_birth, email, mobile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, now(), now())
		RETURNING id
	`, uuid.New(), p.Title, p.FirstName, p.LastName, p.DateOfBirth, p.Mobile).Scan(&id)
	return id, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var title, email, mobile *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, title, first_name, last_name, date_of_birth, email, mobile, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &title, &p.FirstName, &p.LastName, &p.DateOfBirth, &email, &mobile, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Title = title
	p.Email = email
	p.Mobile = mobile
	return &p, nil
}

func (r *PgRepository) ListAppointmentsByContact(ctx context.Context, email, mobile string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentPrefixed("a")+`
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE ($1 <> '' AND lower(p.email) = lower($1))
		   OR ($1 = '' AND $2 <> '' AND p.mobile = $2)
		ORDER BY a.scheduled_at DESC
	`, email, mobile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ActiveAppointmentTimes(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE service_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
	`, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ConfirmMirrored(ctx context.Context, id uuid.UUID, voyagerID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    voyager_appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, voyagerID)

	return scanAppointment(row)
}

func (r *PgRepository) FindUnmirroredPending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND voyager_appointment_id IS NULL
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) InsertMessageLog(ctx context.Context, ml MessageLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_logs (message_type, appointment_id, payload, status, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ml.MessageType, ml.AppointmentID, ml.Payload, ml.Status, nullableTime(ml.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}

	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func appointmentPrefixed(alias string) string {
	cols := strings.Split(appointmentColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

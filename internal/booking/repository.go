package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	// ErrSlotTaken means an active appointment already holds the
	// (service, scheduled instant) pair. The caller lost the race.
	ErrSlotTaken = errors.New("this time slot is no longer available")
)

// NewBooking is everything the ledger needs to record one appointment.
type NewBooking struct {
	ServiceID   uuid.UUID
	BodyPartID  *uuid.UUID
	ScheduledAt time.Time
	Patient     PatientDetails
	Notes       *string
	ReferralURL *string
}

// PatientDetails are upserted by email inside the booking transaction.
type PatientDetails struct {
	Title       *string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Email       *string
	Mobile      *string
}

// Repository contains all ledger interactions needed by the service.
// The appointments table is written exclusively through it.
type Repository interface {
	// CreateBooking runs the atomic re-check -> upsert patient -> insert
	// sequence in one transaction. Returns ErrSlotTaken when an active
	// appointment already occupies the slot, whether found by the re-check
	// or by the unique constraint on insert.
	CreateBooking(ctx context.Context, nb NewBooking) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListAppointmentsByContact(ctx context.Context, email, mobile string) ([]Appointment, error)

	// ActiveAppointmentTimes lists scheduled instants of pending/confirmed
	// appointments for a service in [from, to). The availability resolver
	// builds its booked set from this.
	ActiveAppointmentTimes(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// UpdateAppointmentStatus is a compare-and-set status move.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// ConfirmMirrored moves pending -> confirmed and stores the remote id.
	ConfirmMirrored(ctx context.Context, id uuid.UUID, voyagerID string) (*Appointment, error)

	// FindUnmirroredPending lists pending appointments with no remote id
	// created before the cutoff, for the reconcile worker.
	FindUnmirroredPending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error)

	InsertMessageLog(ctx context.Context, ml MessageLog) error
}

package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// CanTransition reports whether from -> to is a legal status move.
// cancelled and completed are terminal.
func CanTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	default:
		return false
	}
}

// Active reports whether a status occupies its slot for conflict purposes.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Patient struct {
	ID          uuid.UUID
	Title       *string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Email       *string
	Mobile      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID          uuid.UUID
	ServiceID   uuid.UUID
	BodyPartID  *uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt time.Time
	Status      AppointmentStatus
	// VoyagerAppointmentID is set once the booking has been mirrored to the
	// RIS. A pending appointment without one has not reached Voyager yet.
	VoyagerAppointmentID *string
	Notes                *string
	ReferralURL          *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Mirrored reports whether the appointment reached the remote system.
func (a Appointment) Mirrored() bool {
	return a.VoyagerAppointmentID != nil && *a.VoyagerAppointmentID != ""
}

// MessageLog records one outbound HL7 payload and how the send went.
// Rows are audit data, never read back by the booking flow.
type MessageLog struct {
	ID            int64
	MessageType   string
	AppointmentID *uuid.UUID
	Payload       string
	Status        string // sent, failed
	CreatedAt     time.Time
}

const (
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

package ris

import (
	"context"
	"time"
)

// RemoteSlot is one bookable interval as reported by the RIS.
type RemoteSlot struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Available  bool      `json:"available"`
	ResourceID string    `json:"resourceId,omitempty"`
}

// DayAvailability is the RIS per-day slot list.
type DayAvailability struct {
	Date  string       `json:"date"` // YYYY-MM-DD
	Slots []RemoteSlot `json:"slots"`
}

// AppointmentRequest is the outbound booking mirror payload.
type AppointmentRequest struct {
	AppointmentID    string
	PatientID        string
	PatientFirstName string
	PatientLastName  string
	PatientDOB       time.Time
	PatientEmail     string
	ServiceID        string
	ServiceName      string
	BodyPartName     string
	ScheduledAt      time.Time
	DurationMinutes  int
	Notes            string
}

// CreateResult reports the outcome of a booking mirror attempt.
type CreateResult struct {
	Success  bool
	RemoteID string
}

// Gateway is the integration point with the external radiology information
// system. Implementations are expected to be unreliable: callers must treat
// every error as transient and never let one block the local booking path.
type Gateway interface {
	GetAvailability(ctx context.Context, serviceID string, dateFrom, dateTo string) ([]DayAvailability, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*CreateResult, error)
}

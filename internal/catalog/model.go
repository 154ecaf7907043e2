package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Service is an imaging service offered by the clinic (X-Ray, CT, MRI, ...).
// DurationMinutes drives the granularity the schedule templates are built at.
type Service struct {
	ID              uuid.UUID
	Name            string
	Code            string
	Category        string
	Description     *string
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BodyPart is a scannable region for one service, carrying the
// patient-facing preparation instructions for that exam.
type BodyPart struct {
	ID              uuid.UUID
	ServiceID       uuid.UUID
	Name            string
	PreparationText *string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

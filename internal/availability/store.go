package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TemplateStore reads slot templates for a service. All rows are returned,
// including soft-disabled ones: the resolver needs unavailable date-anchored
// entries to suppress weekly slots they override.
type TemplateStore interface {
	ListTemplates(ctx context.Context, serviceID uuid.UUID) ([]SlotTemplate, error)
}

// AppointmentSource supplies the booked instants the resolver checks
// candidates against. Satisfied by booking.PgRepository.
type AppointmentSource interface {
	ActiveAppointmentTimes(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

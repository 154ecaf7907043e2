package availability

import (
	"time"

	"github.com/google/uuid"
)

// SlotTemplate defines one bookable interval for a service, either as a
// weekly-recurring pattern (DayOfWeek + wall-clock times) or as a concrete
// date-anchored slot (StartAt/EndAt instants). Exactly one of the two forms
// is populated. Templates are written by schedule-setup tooling; the
// resolver only reads them.
type SlotTemplate struct {
	ID        uuid.UUID
	ServiceID uuid.UUID

	// Weekly form. DayOfWeek is 0 (Sunday) through 6 (Saturday),
	// StartTime/EndTime are "HH:MM" in the clinic time zone.
	DayOfWeek *int
	StartTime *string
	EndTime   *string

	// Date-anchored form.
	StartAt *time.Time
	EndAt   *time.Time

	// Available soft-disables a template without deleting it. For
	// date-anchored entries an unavailable row also suppresses any weekly
	// slot at the same instant (date-anchored wins).
	Available bool
}

// Anchored reports whether the template is the date-anchored form.
func (t SlotTemplate) Anchored() bool {
	return t.StartAt != nil
}

// TimeSlot is one (time-of-day, available) pair in the resolved view.
type TimeSlot struct {
	Time      string `json:"time"` // HH:MM, clinic local
	Available bool   `json:"available"`
}

// DaySlots is the resolved per-date slot list. It is derived fresh on every
// query and never cached across requests.
type DaySlots struct {
	Date  string     `json:"date"` // YYYY-MM-DD, clinic local
	Slots []TimeSlot `json:"slots"`
}

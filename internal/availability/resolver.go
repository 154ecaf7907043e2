package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/ris"
)

var ErrInvalidRange = errors.New("date_from is after date_to")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Resolver merges slot templates, booked appointments, the "now" cutoff and
// (when reachable) remote RIS availability into one canonical per-date slot
// list. When the RIS answers it is trusted as authoritative and local
// conflict-checking is skipped; on any gateway failure the resolver falls
// back to the local computation unconditionally.
type Resolver struct {
	catalog      catalog.Repository
	templates    TemplateStore
	appointments AppointmentSource
	gateway      ris.Gateway // nil when no RIS is configured
	loc          *time.Location

	gatewayTimeout time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

type ResolverConfig struct {
	Catalog        catalog.Repository
	Templates      TemplateStore
	Appointments   AppointmentSource
	Gateway        ris.Gateway
	Location       *time.Location
	GatewayTimeout time.Duration
	Now            func() time.Time
	Logger         zerolog.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	gatewayTimeout := cfg.GatewayTimeout
	if gatewayTimeout <= 0 {
		gatewayTimeout = 5 * time.Second
	}

	return &Resolver{
		catalog:        cfg.Catalog,
		templates:      cfg.Templates,
		appointments:   cfg.Appointments,
		gateway:        cfg.Gateway,
		loc:            loc,
		gatewayTimeout: gatewayTimeout,
		now:            now,
		log:            cfg.Logger.With().Str("component", "availability").Logger(),
	}
}

// Resolve computes bookable slots for every calendar date in [dateFrom,
// dateTo], both inclusive, in the clinic time zone. Days with no candidate
// slots are omitted entirely.
func (r *Resolver) Resolve(ctx context.Context, serviceID uuid.UUID, dateFrom, dateTo time.Time) ([]DaySlots, error) {
	from := startOfDay(dateFrom.In(r.loc))
	to := startOfDay(dateTo.In(r.loc))
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	if _, err := r.catalog.GetServiceByID(ctx, serviceID); err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	if r.gateway != nil {
		days, err := r.remote(ctx, serviceID, from, to)
		if err == nil {
			return days, nil
		}
		// Fall back locally no matter how the gateway failed. The error
		// must never reach the caller.
		r.log.Warn().
			Err(err).
			Str("service_id", serviceID.String()).
			Msg("voyager availability failed, falling back to local schedule")
	}

	return r.local(ctx, serviceID, from, to)
}

// remote fetches the RIS view and trusts it: only slots the RIS marks
// available are kept, days that end up empty are dropped, and times are
// projected into the clinic time zone.
func (r *Resolver) remote(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]DaySlots, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	defer cancel()

	days, err := r.gateway.GetAvailability(callCtx, serviceID.String(), from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]TimeSlot)
	for _, day := range days {
		for _, slot := range day.Slots {
			if !slot.Available {
				continue
			}
			local := slot.StartTime.In(r.loc)
			date := local.Format(dateLayout)
			byDate[date] = append(byDate[date], TimeSlot{
				Time:      local.Format(timeLayout),
				Available: true,
			})
		}
	}

	return sortedDays(byDate), nil
}

// local merges the template schedule with the appointment ledger.
func (r *Resolver) local(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]DaySlots, error) {
	endExclusive := to.AddDate(0, 0, 1)

	templates, err := r.templates.ListTemplates(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load slot templates: %w", err)
	}

	bookedTimes, err := r.appointments.ActiveAppointmentTimes(ctx, serviceID, from, endExclusive)
	if err != nil {
		return nil, fmt.Errorf("load booked appointments: %w", err)
	}

	booked := make(map[int64]struct{}, len(bookedTimes))
	for _, t := range bookedTimes {
		booked[t.Unix()] = struct{}{}
	}

	// Candidate instants, keyed by unix second so weekly and date-anchored
	// entries landing on the same instant collapse to one slot.
	candidates := make(map[int64]time.Time)

	for day := from; day.Before(endExclusive); day = day.AddDate(0, 0, 1) {
		dow := int(day.Weekday())
		for _, t := range templates {
			if t.Anchored() || !t.Available || t.DayOfWeek == nil || *t.DayOfWeek != dow {
				continue
			}
			hour, minute, err := parseClock(*t.StartTime)
			if err != nil {
				r.log.Error().Err(err).Str("template_id", t.ID.String()).Msg("bad template start time, skipping")
				continue
			}
			instant := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, r.loc)
			candidates[instant.Unix()] = instant
		}
	}

	// Date-anchored entries win over weekly ones at the same instant: an
	// available row adds (or keeps) the slot, an unavailable row removes it.
	for _, t := range templates {
		if !t.Anchored() {
			continue
		}
		instant := t.StartAt.In(r.loc)
		if instant.Before(from) || !instant.Before(endExclusive) {
			continue
		}
		if t.Available {
			candidates[instant.Unix()] = instant
		} else {
			delete(candidates, instant.Unix())
		}
	}

	now := r.now()
	byDate := make(map[string][]TimeSlot)
	for unix, instant := range candidates {
		_, isBooked := booked[unix]
		// Slots at or before "now" are gone; slots later today stay
		// available until their own start time passes.
		available := !isBooked && instant.After(now)

		byDate[instant.Format(dateLayout)] = append(byDate[instant.Format(dateLayout)], TimeSlot{
			Time:      instant.Format(timeLayout),
			Available: available,
		})
	}

	return sortedDays(byDate), nil
}

func sortedDays(byDate map[string][]TimeSlot) []DaySlots {
	result := make([]DaySlots, 0, len(byDate))
	for date, slots := range byDate {
		sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
		result = append(result, DaySlots{Date: date, Slots: slots})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

// parseClock parses "HH:MM" or "HH:MM:SS".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hour, minute, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/catalog"
	redisclient "github.com/axisimaging/radiology-booking/internal/redis"
	"github.com/axisimaging/radiology-booking/internal/ris"
)

var (
	// ErrValidation wraps every malformed-input failure; the detail text
	// names the offending field.
	ErrValidation              = errors.New("invalid booking request")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

const (
	maxNameLen  = 100
	maxNotesLen = 1000
)

// BookRequest is the write-side input. Required-ness is validated here, at
// the single write boundary, not scattered through the read paths.
type BookRequest struct {
	ServiceID   uuid.UUID
	BodyPartID  *uuid.UUID
	ScheduledAt time.Time
	Patient     PatientDetails
	Notes       *string
	ReferralURL *string
}

// Service is the booking transaction manager. It owns every write to the
// appointment ledger: re-check -> persist locally -> best-effort mirror to
// the RIS. The local commit is mandatory; the remote one is optional.
type Service struct {
	repo    Repository
	catalog catalog.Repository
	gateway ris.Gateway            // nil when no RIS is configured
	locker  redisclient.SlotLocker // nil disables the fast-path lock
	log     zerolog.Logger

	mirrorTimeout time.Duration
	now           func() time.Time
}

type ServiceConfig struct {
	Repo          Repository
	Catalog       catalog.Repository
	Gateway       ris.Gateway
	Locker        redisclient.SlotLocker
	Logger        zerolog.Logger
	MirrorTimeout time.Duration
	Now           func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	mirrorTimeout := cfg.MirrorTimeout
	if mirrorTimeout <= 0 {
		mirrorTimeout = 5 * time.Second
	}

	return &Service{
		repo:          cfg.Repo,
		catalog:       cfg.Catalog,
		gateway:       cfg.Gateway,
		locker:        cfg.Locker,
		log:           cfg.Logger.With().Str("component", "booking").Logger(),
		mirrorTimeout: mirrorTimeout,
		now:           now,
	}
}

// Book reserves the slot, persists the appointment as pending, then attempts
// the remote mirror. A mirror failure never rolls the local booking back:
// the clinic must not lose a booking over an unrelated RIS outage.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := validateBookRequest(req, s.now()); err != nil {
		return nil, err
	}

	svc, err := s.catalog.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !svc.Active {
		return nil, catalog.ErrServiceNotFound
	}

	var bodyPartName string
	if req.BodyPartID != nil {
		bp, err := s.catalog.GetBodyPartByID(ctx, *req.BodyPartID)
		if err != nil {
			if errors.Is(err, catalog.ErrBodyPartNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load body part: %w", err)
		}
		// A body part belongs to exactly one service.
		if bp.ServiceID != req.ServiceID || !bp.Active {
			return nil, catalog.ErrBodyPartNotFound
		}
		bodyPartName = bp.Name
	}

	nb := NewBooking{
		ServiceID:   req.ServiceID,
		BodyPartID:  req.BodyPartID,
		ScheduledAt: req.ScheduledAt.UTC(),
		Patient:     req.Patient,
		Notes:       req.Notes,
		ReferralURL: req.ReferralURL,
	}

	var created *Appointment
	create := func(ctx context.Context) error {
		appt, err := s.repo.CreateBooking(ctx, nb)
		if err != nil {
			return err
		}
		created = appt
		return nil
	}

	if s.locker != nil {
		err = s.locker.WithSlotLock(ctx, req.ServiceID, nb.ScheduledAt, create)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Someone else is mid-booking on this slot. Report it the same
			// way as a lost race so the client re-polls availability.
			return nil, ErrSlotTaken
		}
	} else {
		err = create(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("service_id", req.ServiceID.String()).
		Time("scheduled_at", created.ScheduledAt).
		Msg("booking persisted")

	if s.gateway == nil {
		return created, nil
	}

	return s.mirror(ctx, created, svc, bodyPartName, req.Patient), nil
}

// mirror pushes the booking to the RIS. Failures are logged and swallowed:
// the appointment stays pending and the reconcile worker retries later.
func (s *Service) mirror(ctx context.Context, appt *Appointment, svc *catalog.Service, bodyPartName string, patient PatientDetails) *Appointment {
	risReq := ris.AppointmentRequest{
		AppointmentID:    appt.ID.String(),
		PatientID:        appt.PatientID.String(),
		PatientFirstName: patient.FirstName,
		PatientLastName:  patient.LastName,
		PatientDOB:       patient.DateOfBirth,
		PatientEmail:     strPtrValue(patient.Email),
		ServiceID:        svc.ID.String(),
		ServiceName:      svc.Name,
		BodyPartName:     bodyPartName,
		ScheduledAt:      appt.ScheduledAt,
		DurationMinutes:  svc.DurationMinutes,
		Notes:            strPtrValue(appt.Notes),
	}

	mirrorCtx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()

	res, err := s.gateway.CreateAppointment(mirrorCtx, risReq)

	msgStatus := MessageStatusSent
	if err != nil || res == nil || !res.Success {
		msgStatus = MessageStatusFailed
	}
	s.logMessage(ctx, appt.ID, ris.BuildScheduleMessage(risReq, s.now()), msgStatus)

	if err != nil || res == nil || !res.Success {
		s.log.Warn().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("voyager mirror failed, booking stays pending")
		return appt
	}

	updated, err := s.repo.ConfirmMirrored(ctx, appt.ID, res.RemoteID)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("voyager_id", res.RemoteID).
			Msg("mirrored to voyager but local confirm failed")
		return appt
	}

	return updated
}

// ReconcilePending retries the remote mirror for appointments stuck in
// pending with no remote id. Intended to be called periodically by the
// reconcile worker.
func (s *Service) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) error {
	if s.gateway == nil {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}

	cutoff := s.now().Add(-minAge)
	stale, err := s.repo.FindUnmirroredPending(ctx, cutoff, limit)
	if err != nil {
		return fmt.Errorf("find unmirrored pending: %w", err)
	}

	for _, appt := range stale {
		if appt.Mirrored() {
			continue
		}
		svc, err := s.catalog.GetServiceByID(ctx, appt.ServiceID)
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("reconcile: load service")
			continue
		}

		var bodyPartName string
		if appt.BodyPartID != nil {
			if bp, err := s.catalog.GetBodyPartByID(ctx, *appt.BodyPartID); err == nil {
				bodyPartName = bp.Name
			}
		}

		details := PatientDetails{}
		if patient, err := s.repo.GetPatientByID(ctx, appt.PatientID); err == nil {
			details = PatientDetails{
				Title:       patient.Title,
				FirstName:   patient.FirstName,
				LastName:    patient.LastName,
				DateOfBirth: patient.DateOfBirth,
				Email:       patient.Email,
				Mobile:      patient.Mobile,
			}
		}

		a := appt
		s.mirror(ctx, &a, svc, bodyPartName, details)
	}

	return nil
}

// Cancel moves an active appointment to cancelled. Cancellation is a status
// change, never a delete, so the audit history survives.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved under us between the read and the CAS.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.log.Info().Str("appointment_id", id.String()).Msg("appointment cancelled")
	return updated, nil
}

// Complete marks a confirmed appointment as attended.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(appt.Status, StatusCompleted) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListByContact finds a patient's appointments by email or mobile.
func (s *Service) ListByContact(ctx context.Context, email, mobile string) ([]Appointment, error) {
	if email == "" && mobile == "" {
		return nil, fmt.Errorf("%w: email or mobile is required", ErrValidation)
	}
	return s.repo.ListAppointmentsByContact(ctx, email, mobile)
}

func (s *Service) logMessage(ctx context.Context, appointmentID uuid.UUID, payload, status string) {
	apptID := appointmentID
	ml := MessageLog{
		MessageType:   "SIU^S12",
		AppointmentID: &apptID,
		Payload:       payload,
		Status:        status,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertMessageLog(ctx, ml); err != nil {
		s.log.Error().Err(err).Str("appointment_id", appointmentID.String()).Msg("insert message log")
	}
}

func validateBookRequest(req BookRequest, now time.Time) error {
	if req.ServiceID == uuid.Nil {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled datetime is required", ErrValidation)
	}
	if !req.ScheduledAt.After(now) {
		return fmt.Errorf("%w: scheduled datetime must be in the future", ErrValidation)
	}

	p := req.Patient
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("%w: first name is required", ErrValidation)
	}
	if len(p.FirstName) > maxNameLen {
		return fmt.Errorf("%w: first name exceeds %d characters", ErrValidation, maxNameLen)
	}
	if strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("%w: last name is required", ErrValidation)
	}
	if len(p.LastName) > maxNameLen {
		return fmt.Errorf("%w: last name exceeds %d characters", ErrValidation, maxNameLen)
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("%w: date of birth is required", ErrValidation)
	}
	if p.DateOfBirth.After(now) {
		return fmt.Errorf("%w: date of birth is in the future", ErrValidation)
	}

	if p.Email != nil && *p.Email != "" && !strings.Contains(*p.Email, "@") {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if p.Mobile != nil && *p.Mobile != "" {
		digits := countDigits(*p.Mobile)
		if digits < 10 || len(*p.Mobile) > 20 {
			return fmt.Errorf("%w: mobile must be 10-20 digits", ErrValidation)
		}
	}

	if req.Notes != nil && len(*req.Notes) > maxNotesLen {
		return fmt.Errorf("%w: notes exceed %d characters", ErrValidation, maxNotesLen)
	}

	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

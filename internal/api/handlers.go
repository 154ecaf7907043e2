package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/axisimaging/radiology-booking/internal/availability"
	"github.com/axisimaging/radiology-booking/internal/booking"
	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/referral"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
)

// AvailabilityResolver is what the availability endpoint needs from the core.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, serviceID uuid.UUID, dateFrom, dateTo time.Time) ([]availability.DaySlots, error)
}

// BookingService is what the booking endpoints need from the core.
type BookingService interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListByContact(ctx context.Context, email, mobile string) ([]booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
}

// Availability

func availabilityHandler(resolver AvailabilityResolver, cat catalog.Repository, loc *time.Location, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceIDStr := r.URL.Query().Get("service_id")
		if serviceIDStr == "" {
			writeError(w, http.StatusBadRequest, "missing_service_id", "service_id is required")
			return
		}
		serviceID, err := uuid.Parse(serviceIDStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		today := now().In(loc)
		dateFrom := today
		dateTo := today.AddDate(0, 0, defaultRangeDays)

		if v := r.URL.Query().Get("date_from"); v != "" {
			dateFrom, err = time.ParseInLocation(dateLayout, v, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_from", "date_from must be YYYY-MM-DD")
				return
			}
		}
		if v := r.URL.Query().Get("date_to"); v != "" {
			dateTo, err = time.ParseInLocation(dateLayout, v, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_to", "date_to must be YYYY-MM-DD")
				return
			}
		}

		svc, err := cat.GetServiceByID(r.Context(), serviceID)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		days, err := resolver.Resolve(r.Context(), serviceID, dateFrom, dateTo)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}
		if days == nil {
			days = []availability.DaySlots{}
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Service:      AvailabilityServiceInfo{DurationMinutes: svc.DurationMinutes},
			Availability: days,
		})
	}
}

// Bookings

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		var bodyPartID *uuid.UUID
		if req.BodyPartID != nil && *req.BodyPartID != "" {
			id, err := uuid.Parse(*req.BodyPartID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body_part_id", "body_part_id must be a valid UUID")
				return
			}
			bodyPartID = &id
		}

		var dob time.Time
		if req.PatientDetails.DateOfBirth != "" {
			dob, err = time.Parse(dateLayout, req.PatientDetails.DateOfBirth)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_of_birth", "date_of_birth must be YYYY-MM-DD")
				return
			}
		}

		appt, err := svc.Book(r.Context(), booking.BookRequest{
			ServiceID:   serviceID,
			BodyPartID:  bodyPartID,
			ScheduledAt: req.ScheduledDatetime,
			Patient: booking.PatientDetails{
				Title:       req.PatientDetails.Title,
				FirstName:   req.PatientDetails.FirstName,
				LastName:    req.PatientDetails.LastName,
				DateOfBirth: dob,
				Email:       req.PatientDetails.Email,
				Mobile:      req.PatientDetails.Mobile,
			},
			Notes:       req.Notes,
			ReferralURL: req.ReferralURL,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(appt))
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(appt))
	}
}

func listBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		mobile := r.URL.Query().Get("mobile")

		appts, err := svc.ListByContact(r.Context(), email, mobile)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toBookingResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(appt))
	}
}

func completeBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(appt))
	}
}

// Catalog

func listServicesHandler(cat catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := cat.ListActiveServices(r.Context())
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		resp := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			resp = append(resp, toServiceResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getServiceHandler(cat catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "id must be a valid UUID")
			return
		}

		s, err := cat.GetServiceByID(r.Context(), id)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toServiceResponse(*s))
	}
}

func listBodyPartsHandler(cat catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "id must be a valid UUID")
			return
		}

		parts, err := cat.ListBodyPartsByService(r.Context(), id)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		resp := make([]BodyPartResponse, 0, len(parts))
		for _, b := range parts {
			resp = append(resp, toBodyPartResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getBodyPartHandler(cat catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body_part_id", "id must be a valid UUID")
			return
		}

		b, err := cat.GetBodyPartByID(r.Context(), id)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBodyPartResponse(*b))
	}
}

func getPreparationHandler(cat catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body_part_id", "id must be a valid UUID")
			return
		}

		b, err := cat.GetBodyPartByID(r.Context(), id)
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, PreparationResponse{
			BodyPart:        b.Name,
			PreparationText: b.PreparationText,
		})
	}
}

// Referral upload

func uploadReferralHandler(store referral.Store, maxBytes int64, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// maxBytes plus some headroom for the multipart envelope.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file", "multipart field 'file' is required")
			return
		}
		defer file.Close()

		url, err := store.Save(r.Context(), header.Header.Get("Content-Type"), file)
		if err != nil {
			switch {
			case errors.Is(err, referral.ErrUnsupportedType):
				writeError(w, http.StatusBadRequest, "unsupported_file_type", err.Error())
			case errors.Is(err, referral.ErrTooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
			default:
				log.Error().Err(err).Msg("referral upload failed")
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to store referral")
			}
			return
		}

		writeJSON(w, http.StatusCreated, ReferralUploadResponse{URL: url})
	}
}

// Error mapping

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, availability.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to fetch availability")
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, catalog.ErrBodyPartNotFound):
		writeError(w, http.StatusNotFound, "body_part_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", "This time slot is no longer available")
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process booking")
	}
}

func handleCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, catalog.ErrBodyPartNotFound):
		writeError(w, http.StatusNotFound, "body_part_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog lookup failed")
	}
}

// Mapping helpers

func toBookingResponse(a *booking.Appointment) BookingResponse {
	return BookingResponse{
		ID:                   a.ID,
		ServiceID:            a.ServiceID,
		BodyPartID:           a.BodyPartID,
		ScheduledDatetime:    a.ScheduledAt,
		Status:               string(a.Status),
		VoyagerAppointmentID: a.VoyagerAppointmentID,
	}
}

func toServiceResponse(s catalog.Service) ServiceResponse {
	return ServiceResponse{
		ID:              s.ID,
		Name:            s.Name,
		Code:            s.Code,
		Category:        s.Category,
		Description:     s.Description,
		DurationMinutes: s.DurationMinutes,
	}
}

func toBodyPartResponse(b catalog.BodyPart) BodyPartResponse {
	return BodyPartResponse{
		ID:              b.ID,
		ServiceID:       b.ServiceID,
		Name:            b.Name,
		PreparationText: b.PreparationText,
	}
}

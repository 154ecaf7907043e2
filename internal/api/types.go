package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/axisimaging/radiology-booking/internal/availability"
)

type ServiceResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	Category        string    `json:"category"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
}

type BodyPartResponse struct {
	ID              uuid.UUID `json:"id"`
	ServiceID       uuid.UUID `json:"service_id"`
	Name            string    `json:"name"`
	PreparationText *string   `json:"preparation_text,omitempty"`
}

type PreparationResponse struct {
	BodyPart        string  `json:"body_part"`
	PreparationText *string `json:"preparation_text"`
}

type AvailabilityResponse struct {
	Service      AvailabilityServiceInfo `json:"service"`
	Availability []availability.DaySlots `json:"availability"`
}

type AvailabilityServiceInfo struct {
	DurationMinutes int `json:"duration_minutes"`
}

type PatientDetailsRequest struct {
	Title       *string `json:"title,omitempty"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth string  `json:"date_of_birth"` // YYYY-MM-DD
	Email       *string `json:"email,omitempty"`
	Mobile      *string `json:"mobile,omitempty"`
}

type CreateBookingRequest struct {
	ServiceID         string                `json:"service_id"`
	BodyPartID        *string               `json:"body_part_id,omitempty"`
	ScheduledDatetime time.Time             `json:"scheduled_datetime"` // ISO 8601
	PatientDetails    PatientDetailsRequest `json:"patient_details"`
	Notes             *string               `json:"notes,omitempty"`
	ReferralURL       *string               `json:"referral_url,omitempty"`
}

type BookingResponse struct {
	ID                   uuid.UUID  `json:"id"`
	ServiceID            uuid.UUID  `json:"service_id"`
	BodyPartID           *uuid.UUID `json:"body_part_id,omitempty"`
	ScheduledDatetime    time.Time  `json:"scheduled_datetime"`
	Status               string     `json:"status"`
	VoyagerAppointmentID *string    `json:"voyager_appointment_id,omitempty"`
}

type ReferralUploadResponse struct {
	URL string `json:"url"`
}

package ris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// VoyagerConfig configures the REST transport to the Voyager RIS.
type VoyagerConfig struct {
	BaseURL    string
	Username   string
	Password   string
	FacilityID string
	Timeout    time.Duration
}

// VoyagerClient talks to Voyager over its REST bridge with basic auth.
// Every call carries a fixed client-side timeout so a hung RIS can never
// stall an availability query or a booking.
type VoyagerClient struct {
	baseURL    string
	username   string
	password   string
	facilityID string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewVoyagerClient(cfg VoyagerConfig, log zerolog.Logger) *VoyagerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &VoyagerClient{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		facilityID: cfg.FacilityID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "voyager").Logger(),
	}
}

type voyagerAvailabilityRequest struct {
	ServiceID  string `json:"serviceId"`
	DateFrom   string `json:"dateFrom"`
	DateTo     string `json:"dateTo"`
	FacilityID string `json:"facilityId"`
}

func (c *VoyagerClient) GetAvailability(ctx context.Context, serviceID string, dateFrom, dateTo string) ([]DayAvailability, error) {
	body := voyagerAvailabilityRequest{
		ServiceID:  serviceID,
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		FacilityID: c.facilityID,
	}

	var days []DayAvailability
	if err := c.post(ctx, "/api/availability", body, &days); err != nil {
		return nil, fmt.Errorf("voyager availability: %w", err)
	}

	return days, nil
}

type voyagerAppointmentRequest struct {
	PatientID         string `json:"patientId"`
	ServiceID         string `json:"serviceId"`
	ScheduledDateTime string `json:"scheduledDateTime"`
	Duration          int    `json:"duration"`
	FacilityID        string `json:"facilityId"`
	Notes             string `json:"notes,omitempty"`
}

type voyagerAppointmentResponse struct {
	AppointmentID string `json:"appointmentId"`
}

func (c *VoyagerClient) CreateAppointment(ctx context.Context, req AppointmentRequest) (*CreateResult, error) {
	body := voyagerAppointmentRequest{
		PatientID:         req.PatientID,
		ServiceID:         req.ServiceID,
		ScheduledDateTime: req.ScheduledAt.UTC().Format(time.RFC3339),
		Duration:          req.DurationMinutes,
		FacilityID:        c.facilityID,
		Notes:             req.Notes,
	}

	var resp voyagerAppointmentResponse
	if err := c.post(ctx, "/api/appointments", body, &resp); err != nil {
		return nil, fmt.Errorf("voyager create appointment: %w", err)
	}

	return &CreateResult{Success: true, RemoteID: resp.AppointmentID}, nil
}

// Reachable probes the REST bridge for readiness reporting. Any HTTP
// response counts as reachable; only transport failures do not.
func (c *VoyagerClient) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/availability", nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (c *VoyagerClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the log, then give up on it.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Bytes("body", snippet).Msg("voyager returned non-success")
		return fmt.Errorf("voyager API error: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

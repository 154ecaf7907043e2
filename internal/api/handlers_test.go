package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axisimaging/radiology-booking/internal/availability"
	"github.com/axisimaging/radiology-booking/internal/booking"
	"github.com/axisimaging/radiology-booking/internal/catalog"
	"github.com/axisimaging/radiology-booking/internal/referral"
)

var (
	ctServiceID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	chestPartID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeCatalog struct{}

func (f *fakeCatalog) ListActiveServices(ctx context.Context) ([]catalog.Service, error) {
	return []catalog.Service{{ID: ctServiceID, Name: "CT Scan", Code: "CT", Category: "ct", DurationMinutes: 45, Active: true}}, nil
}

func (f *fakeCatalog) GetServiceByID(ctx context.Context, id uuid.UUID) (*catalog.Service, error) {
	if id != ctServiceID {
		return nil, catalog.ErrServiceNotFound
	}
	return &catalog.Service{ID: ctServiceID, Name: "CT Scan", Code: "CT", Category: "ct", DurationMinutes: 45, Active: true}, nil
}

func (f *fakeCatalog) ListBodyPartsByService(ctx context.Context, serviceID uuid.UUID) ([]catalog.BodyPart, error) {
	if serviceID != ctServiceID {
		return nil, catalog.ErrServiceNotFound
	}
	return []catalog.BodyPart{{ID: chestPartID, ServiceID: ctServiceID, Name: "Chest", Active: true}}, nil
}

func (f *fakeCatalog) GetBodyPartByID(ctx context.Context, id uuid.UUID) (*catalog.BodyPart, error) {
	if id != chestPartID {
		return nil, catalog.ErrBodyPartNotFound
	}
	prep := "No food for 4 hours before the scan."
	return &catalog.BodyPart{ID: chestPartID, ServiceID: ctServiceID, Name: "Chest", PreparationText: &prep, Active: true}, nil
}

type fakeResolver struct {
	days []availability.DaySlots
	err  error

	gotFrom time.Time
	gotTo   time.Time
}

func (f *fakeResolver) Resolve(ctx context.Context, serviceID uuid.UUID, dateFrom, dateTo time.Time) ([]availability.DaySlots, error) {
	f.gotFrom, f.gotTo = dateFrom, dateTo
	return f.days, f.err
}

type fakeBooking struct {
	appt *booking.Appointment
	err  error
}

func (f *fakeBooking) Book(ctx context.Context, req booking.BookRequest) (*booking.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBooking) Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBooking) ListByContact(ctx context.Context, email, mobile string) ([]booking.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.appt == nil {
		return nil, nil
	}
	return []booking.Appointment{*f.appt}, nil
}

func (f *fakeBooking) Cancel(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBooking) Complete(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return f.appt, f.err
}

func newTestRouter(resolver *fakeResolver, svc *fakeBooking) http.Handler {
	return NewRouter(RouterConfig{
		Catalog:        &fakeCatalog{},
		Availability:   resolver,
		Booking:        svc,
		ClinicLocation: time.FixedZone("AEST", 10*3600),
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.FixedZone("AEST", 10*3600)) },
	})
}

func doRequest(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAvailabilityRequiresServiceID(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "missing_service_id", resp.Error)
}

func TestAvailabilityRejectsBadDates(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/availability?service_id="+ctServiceID.String()+"&date_from=04-03-2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityUnknownService(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/availability?service_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityDefaultsTo30Days(t *testing.T) {
	resolver := &fakeResolver{days: []availability.DaySlots{}}
	h := newTestRouter(resolver, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/availability?service_id="+ctServiceID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 30*24*time.Hour, resolver.gotTo.Sub(resolver.gotFrom))

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 45, resp.Service.DurationMinutes)
	assert.NotNil(t, resp.Availability)
}

func TestAvailabilityReturnsResolvedDays(t *testing.T) {
	resolver := &fakeResolver{days: []availability.DaySlots{
		{Date: "2026-03-09", Slots: []availability.TimeSlot{{Time: "09:00", Available: true}}},
	}}
	h := newTestRouter(resolver, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet,
		"/availability?service_id="+ctServiceID.String()+"&date_from=2026-03-09&date_to=2026-03-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Availability, 1)
	assert.Equal(t, "2026-03-09", resp.Availability[0].Date)
}

func validBookingBody() map[string]any {
	return map[string]any{
		"service_id":         ctServiceID.String(),
		"scheduled_datetime": "2026-03-09T09:00:00+10:00",
		"patient_details": map[string]any{
			"first_name":    "Jane",
			"last_name":     "Doe",
			"date_of_birth": "1990-05-15",
			"email":         "jane@example.com",
			"mobile":        "0400123456",
		},
	}
}

func TestCreateBookingSuccess(t *testing.T) {
	apptID := uuid.New()
	svc := &fakeBooking{appt: &booking.Appointment{
		ID:          apptID,
		ServiceID:   ctServiceID,
		ScheduledAt: time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC),
		Status:      booking.StatusPending,
	}}
	h := newTestRouter(&fakeResolver{}, svc)

	body, _ := json.Marshal(validBookingBody())
	rec := doRequest(t, h, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apptID, resp.ID)
	assert.Equal(t, "pending", resp.Status)
}

func TestCreateBookingSlotTaken(t *testing.T) {
	svc := &fakeBooking{err: booking.ErrSlotTaken}
	h := newTestRouter(&fakeResolver{}, svc)

	body, _ := json.Marshal(validBookingBody())
	rec := doRequest(t, h, http.MethodPost, "/bookings", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "slot_unavailable", resp.Error)
}

func TestCreateBookingValidationError(t *testing.T) {
	svc := &fakeBooking{err: fmt.Errorf("%w: first_name is required", booking.ErrValidation)}
	h := newTestRouter(&fakeResolver{}, svc)

	body, _ := json.Marshal(validBookingBody())
	rec := doRequest(t, h, http.MethodPost, "/bookings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingBadJSON(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodPost, "/bookings", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingBadServiceUUID(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	b := validBookingBody()
	b["service_id"] = "not-a-uuid"
	body, _ := json.Marshal(b)
	rec := doRequest(t, h, http.MethodPost, "/bookings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookingNotFound(t *testing.T) {
	svc := &fakeBooking{err: booking.ErrAppointmentNotFound}
	h := newTestRouter(&fakeResolver{}, svc)

	rec := doRequest(t, h, http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBookingBadID(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/bookings/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBookingInvalidTransition(t *testing.T) {
	svc := &fakeBooking{err: booking.ErrInvalidStatusTransition}
	h := newTestRouter(&fakeResolver{}, svc)

	rec := doRequest(t, h, http.MethodPost, "/bookings/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteBooking(t *testing.T) {
	svc := &fakeBooking{appt: &booking.Appointment{
		ID:        uuid.New(),
		ServiceID: ctServiceID,
		Status:    booking.StatusCompleted,
	}}
	h := newTestRouter(&fakeResolver{}, svc)

	rec := doRequest(t, h, http.MethodPost, "/bookings/"+svc.appt.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
}

func TestListServices(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []ServiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "CT Scan", resp[0].Name)
	assert.Equal(t, 45, resp[0].DurationMinutes)
}

func TestGetPreparation(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/body-parts/"+chestPartID.String()+"/preparation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PreparationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Chest", resp.BodyPart)
	require.NotNil(t, resp.PreparationText)
	assert.Contains(t, *resp.PreparationText, "4 hours")
}

func TestGetPreparationUnknownBodyPart(t *testing.T) {
	h := newTestRouter(&fakeResolver{}, &fakeBooking{})

	rec := doRequest(t, h, http.MethodGet, "/body-parts/"+uuid.NewString()+"/preparation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newTestReferralStore(t *testing.T, dir string) referral.Store {
	t.Helper()
	store, err := referral.NewDiskStore(dir, "http://localhost:8080/referrals", 1<<20, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestUploadReferralMissingFile(t *testing.T) {
	dir := t.TempDir()
	store := newTestReferralStore(t, dir)
	h := NewRouter(RouterConfig{
		Catalog:         &fakeCatalog{},
		Availability:    &fakeResolver{},
		Booking:         &fakeBooking{},
		Referrals:       store,
		ReferralMaxSize: 1 << 20,
		Logger:          zerolog.Nop(),
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/referrals/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadReferralPDF(t *testing.T) {
	dir := t.TempDir()
	store := newTestReferralStore(t, dir)
	h := NewRouter(RouterConfig{
		Catalog:         &fakeCatalog{},
		Availability:    &fakeResolver{},
		Booking:         &fakeBooking{},
		Referrals:       store,
		ReferralMaxSize: 1 << 20,
		Logger:          zerolog.Nop(),
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="referral.pdf"`}
	hdr["Content-Type"] = []string{"application/pdf"}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test referral"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/referrals/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ReferralUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasSuffix(resp.URL, ".pdf"))
}

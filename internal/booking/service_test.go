package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axisimaging/radiology-booking/internal/catalog"
	redisclient "github.com/axisimaging/radiology-booking/internal/redis"
	"github.com/axisimaging/radiology-booking/internal/ris"
)

var (
	ctServiceID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	chestPartID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	foreignPartID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

// ---------- Fakes ----------

type fakeRepo struct {
	appointments map[uuid.UUID]*Appointment
	patients     map[uuid.UUID]*Patient
	messages     []MessageLog
	unmirrored   []Appointment

	createErr    error
	createCalls  int
	confirmCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		appointments: make(map[uuid.UUID]*Appointment),
		patients:     make(map[uuid.UUID]*Patient),
	}
}

func (f *fakeRepo) CreateBooking(ctx context.Context, nb NewBooking) (*Appointment, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	patientID := uuid.New()
	f.patients[patientID] = &Patient{
		ID:          patientID,
		FirstName:   nb.Patient.FirstName,
		LastName:    nb.Patient.LastName,
		DateOfBirth: nb.Patient.DateOfBirth,
		Email:       nb.Patient.Email,
		Mobile:      nb.Patient.Mobile,
	}
	a := &Appointment{
		ID:          uuid.New(),
		ServiceID:   nb.ServiceID,
		BodyPartID:  nb.BodyPartID,
		PatientID:   patientID,
		ScheduledAt: nb.ScheduledAt,
		Status:      StatusPending,
		Notes:       nb.Notes,
		ReferralURL: nb.ReferralURL,
	}
	f.appointments[a.ID] = a
	return a, nil
}

func (f *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := f.appointments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, ErrPatientNotFound
}

func (f *fakeRepo) ListAppointmentsByContact(ctx context.Context, email, mobile string) ([]Appointment, error) {
	var result []Appointment
	for _, a := range f.appointments {
		result = append(result, *a)
	}
	return result, nil
}

func (f *fakeRepo) ActiveAppointmentTimes(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return nil, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	a, ok := f.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ConfirmMirrored(ctx context.Context, id uuid.UUID, voyagerID string) (*Appointment, error) {
	f.confirmCalls++
	a, ok := f.appointments[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusConfirmed
	a.VoyagerAppointmentID = &voyagerID
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) FindUnmirroredPending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	return f.unmirrored, nil
}

func (f *fakeRepo) InsertMessageLog(ctx context.Context, ml MessageLog) error {
	f.messages = append(f.messages, ml)
	return nil
}

type fakeGateway struct {
	result  *ris.CreateResult
	err     error
	calls   int
	lastReq ris.AppointmentRequest
}

func (f *fakeGateway) GetAvailability(ctx context.Context, serviceID string, dateFrom, dateTo string) ([]ris.DayAvailability, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) CreateAppointment(ctx context.Context, req ris.AppointmentRequest) (*ris.CreateResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLocker struct {
	acquired bool
	calls    int
}

func (f *fakeLocker) WithSlotLock(ctx context.Context, serviceID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	f.calls++
	if !f.acquired {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type fakeCatalog struct {
	services  map[uuid.UUID]*catalog.Service
	bodyParts map[uuid.UUID]*catalog.BodyPart
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		services: map[uuid.UUID]*catalog.Service{
			ctServiceID: {ID: ctServiceID, Name: "CT Scan", Code: "CT", Category: "CT", DurationMinutes: 45, Active: true},
		},
		bodyParts: map[uuid.UUID]*catalog.BodyPart{
			chestPartID:   {ID: chestPartID, ServiceID: ctServiceID, Name: "Chest", Active: true},
			foreignPartID: {ID: foreignPartID, ServiceID: uuid.New(), Name: "Brain", Active: true},
		},
	}
}

func (f *fakeCatalog) ListActiveServices(ctx context.Context) ([]catalog.Service, error) {
	return nil, nil
}

func (f *fakeCatalog) GetServiceByID(ctx context.Context, id uuid.UUID) (*catalog.Service, error) {
	if s, ok := f.services[id]; ok {
		return s, nil
	}
	return nil, catalog.ErrServiceNotFound
}

func (f *fakeCatalog) ListBodyPartsByService(ctx context.Context, serviceID uuid.UUID) ([]catalog.BodyPart, error) {
	return nil, nil
}

func (f *fakeCatalog) GetBodyPartByID(ctx context.Context, id uuid.UUID) (*catalog.BodyPart, error) {
	if b, ok := f.bodyParts[id]; ok {
		return b, nil
	}
	return nil, catalog.ErrBodyPartNotFound
}

// ---------- Helpers ----------

func strPtr(s string) *string { return &s }

func validRequest() BookRequest {
	return BookRequest{
		ServiceID:   ctServiceID,
		ScheduledAt: testNow.Add(48 * time.Hour),
		Patient: PatientDetails{
			FirstName:   "Jane",
			LastName:    "Citizen",
			DateOfBirth: time.Date(1980, 7, 14, 0, 0, 0, 0, time.UTC),
			Email:       strPtr("jane@example.com"),
			Mobile:      strPtr("0400123456"),
		},
	}
}

func newTestService(repo *fakeRepo, gw ris.Gateway, locker redisclient.SlotLocker) *Service {
	cfg := ServiceConfig{
		Repo:    repo,
		Catalog: newFakeCatalog(),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return testNow },
	}
	if gw != nil {
		cfg.Gateway = gw
	}
	if locker != nil {
		cfg.Locker = locker
	}
	return NewService(cfg)
}

// ---------- Book ----------

func TestBookWithoutGatewayStaysPending(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Nil(t, appt.VoyagerAppointmentID)
	assert.Equal(t, 1, repo.createCalls)
	assert.Empty(t, repo.messages, "no mirror attempt means no message log")
}

func TestBookMirrorSuccessConfirms(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{result: &ris.CreateResult{Success: true, RemoteID: "VOY-42"}}
	svc := newTestService(repo, gw, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, appt.Status)
	require.NotNil(t, appt.VoyagerAppointmentID)
	assert.Equal(t, "VOY-42", *appt.VoyagerAppointmentID)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, "CT Scan", gw.lastReq.ServiceName)
	assert.Equal(t, 45, gw.lastReq.DurationMinutes)

	require.Len(t, repo.messages, 1)
	assert.Equal(t, "SIU^S12", repo.messages[0].MessageType)
	assert.Equal(t, MessageStatusSent, repo.messages[0].Status)
}

func TestBookMirrorFailureLeavesPending(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{err: errors.New("voyager down")}
	svc := newTestService(repo, gw, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err, "a remote outage must not fail the booking")

	assert.Equal(t, StatusPending, appt.Status)
	assert.Nil(t, appt.VoyagerAppointmentID)
	assert.Zero(t, repo.confirmCalls)

	// The appointment is durably in the ledger.
	stored, err := svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	require.Len(t, repo.messages, 1)
	assert.Equal(t, MessageStatusFailed, repo.messages[0].Status)
}

func TestBookSlotTaken(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = ErrSlotTaken
	svc := newTestService(repo, nil, nil)

	_, err := svc.Book(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookLockContentionReportsSlotTaken(t *testing.T) {
	repo := newFakeRepo()
	locker := &fakeLocker{acquired: false}
	svc := newTestService(repo, nil, locker)

	_, err := svc.Book(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Zero(t, repo.createCalls, "lock contention must short-circuit before the ledger")
}

func TestBookAcquiredLockRunsCriticalSection(t *testing.T) {
	repo := newFakeRepo()
	locker := &fakeLocker{acquired: true}
	svc := newTestService(repo, nil, locker)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, locker.calls)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestBookUnknownService(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	req := validRequest()
	req.ServiceID = uuid.New()

	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestBookBodyPartBelongsToOtherService(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	req := validRequest()
	id := foreignPartID
	req.BodyPartID = &id

	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, catalog.ErrBodyPartNotFound)
}

func TestBookBodyPartAccepted(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{result: &ris.CreateResult{Success: true, RemoteID: "VOY-1"}}
	svc := newTestService(repo, gw, nil)

	req := validRequest()
	id := chestPartID
	req.BodyPartID = &id

	_, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Chest", gw.lastReq.BodyPartName)
}

func TestBookValidation(t *testing.T) {
	longString := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	cases := []struct {
		name   string
		mutate func(*BookRequest)
	}{
		{"missing first name", func(r *BookRequest) { r.Patient.FirstName = "  " }},
		{"missing last name", func(r *BookRequest) { r.Patient.LastName = "" }},
		{"first name too long", func(r *BookRequest) { r.Patient.FirstName = longString(101) }},
		{"missing date of birth", func(r *BookRequest) { r.Patient.DateOfBirth = time.Time{} }},
		{"future date of birth", func(r *BookRequest) { r.Patient.DateOfBirth = testNow.Add(24 * time.Hour) }},
		{"bad email", func(r *BookRequest) { r.Patient.Email = strPtr("not-an-email") }},
		{"short mobile", func(r *BookRequest) { r.Patient.Mobile = strPtr("12345") }},
		{"notes too long", func(r *BookRequest) { r.Notes = strPtr(longString(1001)) }},
		{"zero scheduled time", func(r *BookRequest) { r.ScheduledAt = time.Time{} }},
		{"scheduled in the past", func(r *BookRequest) { r.ScheduledAt = testNow.Add(-time.Hour) }},
		{"scheduled exactly now", func(r *BookRequest) { r.ScheduledAt = testNow }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, nil, nil)

			req := validRequest()
			tc.mutate(&req)

			_, err := svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, repo.createCalls)
		})
	}
}

// ---------- Status transitions ----------

func TestCancelPending(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelTerminalStatusRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{result: &ris.CreateResult{Success: true, RemoteID: "VOY-7"}}
	svc := newTestService(repo, gw, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, appt.Status)

	done, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// completed is terminal.
	_, err = svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCompletePendingRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCancelled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCompleted))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
	assert.False(t, CanTransition(StatusCancelled, StatusConfirmed))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
}

// ---------- Reconcile ----------

func TestReconcilePendingMirrorsAndConfirms(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{err: errors.New("voyager down")}
	svc := newTestService(repo, gw, nil)

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StatusPending, appt.Status)

	// RIS comes back; the worker retries.
	gw.err = nil
	gw.result = &ris.CreateResult{Success: true, RemoteID: "VOY-55"}
	repo.unmirrored = []Appointment{*repo.appointments[appt.ID]}

	err = svc.ReconcilePending(context.Background(), time.Minute, 10)
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	require.NotNil(t, stored.VoyagerAppointmentID)
	assert.Equal(t, "VOY-55", *stored.VoyagerAppointmentID)
	assert.Equal(t, "Jane", gw.lastReq.PatientFirstName, "reconcile must rehydrate patient details")
}

func TestReconcilePendingNoGatewayIsNoop(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	err := svc.ReconcilePending(context.Background(), time.Minute, 10)
	assert.NoError(t, err)
}

// ---------- Lookup ----------

func TestListByContactRequiresContact(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, nil)

	_, err := svc.ListByContact(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

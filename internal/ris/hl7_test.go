package ris

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScheduleMessage(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	req := AppointmentRequest{
		AppointmentID:    "appt-123",
		PatientID:        "pat-456",
		PatientFirstName: "Jane",
		PatientLastName:  "Citizen",
		PatientDOB:       time.Date(1980, 7, 14, 0, 0, 0, 0, time.UTC),
		PatientEmail:     "jane@example.com",
		ServiceName:      "CT Scan",
		BodyPartName:     "Abdomen",
		ScheduledAt:      time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		DurationMinutes:  45,
	}

	msg := BuildScheduleMessage(req, now)
	segments := strings.Split(msg, "\r")
	require.Len(t, segments, 5)

	msh := strings.Split(segments[0], "|")
	assert.Equal(t, "MSH", msh[0])
	assert.Equal(t, "AXIS_BOOKING", msh[2])
	assert.Equal(t, "VOYAGER", msh[4])
	assert.Equal(t, "20260302103000", msh[6])
	assert.Equal(t, "SIU^S12", msh[8])
	assert.True(t, strings.HasPrefix(msh[9], "AXI-"))
	assert.Equal(t, "2.5", msh[11])

	pid := strings.Split(segments[1], "|")
	assert.Equal(t, "PID", pid[0])
	assert.Equal(t, "pat-456^^^AXIS", pid[3])
	assert.Equal(t, "Citizen^Jane", pid[5])
	assert.Equal(t, "19800714000000", pid[7])

	sch := strings.Split(segments[2], "|")
	assert.Equal(t, "SCH", sch[0])
	assert.Equal(t, "appt-123", sch[3])
	assert.Equal(t, "BOOKED", sch[5])
	assert.Equal(t, "20260309090000", sch[6])
	assert.Equal(t, "45", sch[7])

	assert.Equal(t, "ORC", strings.Split(segments[3], "|")[0])

	obr := strings.Split(segments[4], "|")
	assert.Equal(t, "OBR", obr[0])
	assert.Equal(t, "appt-123", obr[3])
	assert.Equal(t, "CT Scan", obr[5])
	assert.Equal(t, "Abdomen", obr[len(obr)-1])
}

func TestBuildScheduleMessageControlIDsDiffer(t *testing.T) {
	now := time.Now()
	req := AppointmentRequest{AppointmentID: "a", ScheduledAt: now}

	a := BuildScheduleMessage(req, now)
	b := BuildScheduleMessage(req, now)
	assert.NotEqual(t, a, b)
}

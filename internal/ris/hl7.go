package ris

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	sendingApp  = "AXIS_BOOKING"
	sendingFac  = "AXIS"
	receiverApp = "VOYAGER"
)

// BuildScheduleMessage renders the SIU^S12 (new appointment) payload the RIS
// bridge expects alongside the REST call. Only the message body is built here;
// MLLP framing is the transport's problem.
func BuildScheduleMessage(req AppointmentRequest, now time.Time) string {
	controlID := fmt.Sprintf("AXI-%d-%06d", now.UnixMilli(), rand.Intn(1000000))

	msh := strings.Join([]string{
		"MSH", "^~\\&", sendingApp, sendingFac, receiverApp, receiverApp,
		formatHL7Date(now), "", "SIU^S12", controlID, "P", "2.5",
	}, "|")

	pid := strings.Join([]string{
		"PID", "1", "", req.PatientID + "^^^" + sendingFac, "",
		req.PatientLastName + "^" + req.PatientFirstName, "",
		formatHL7Date(req.PatientDOB), req.PatientEmail,
	}, "|")

	sch := strings.Join([]string{
		"SCH", "1", "", req.AppointmentID, "", "BOOKED",
		formatHL7Date(req.ScheduledAt), fmt.Sprintf("%d", req.DurationMinutes),
	}, "|")

	orc := strings.Join([]string{
		"ORC", "NW", "", "", "", "", "", "", formatHL7Date(now),
	}, "|")

	obr := "OBR|1||" + req.AppointmentID + "||" + req.ServiceName +
		"||" + formatHL7Date(now) + strings.Repeat("|", 23) + req.BodyPartName

	return strings.Join([]string{msh, pid, sch, orc, obr}, "\r")
}

// formatHL7Date renders YYYYMMDDHHMMSS in UTC.
func formatHL7Date(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

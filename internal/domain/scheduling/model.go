package scheduling

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Appointment modes and types.
const (
	ModeInClinic = "in-clinic"
	ModeOnline   = "online"

	TypeConsultation = "consultation"
	TypeFollowUp     = "follow-up"
	TypeCheckup      = "checkup"
)

var validModes = map[string]bool{ModeInClinic: true, ModeOnline: true}

var validTypes = map[string]bool{TypeConsultation: true, TypeFollowUp: true, TypeCheckup: true}

// Appointment maps to the appointments table. The slot it occupies is the
// (doctor_id, date, time) triple; the database enforces that at most one
// non-cancelled appointment holds a slot.
type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date            time.Time `db:"appointment_date" json:"date"`
	Time            string    `db:"appointment_time" json:"time"`
	Mode            string    `db:"mode" json:"mode"`
	Type            string    `db:"type" json:"type"`
	Status          string    `db:"status" json:"status"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`
	Earnings        float64   `db:"earnings" json:"earnings"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// transitions is the closed table of legal status edges. Completed is
// absent as a target: only CompleteFromPrescription sets it.
var transitions = map[string]map[string]bool{
	StatusScheduled: {
		StatusInProgress: true,
		StatusCancelled:  true,
		StatusScheduled:  true, // reschedule
	},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the edge from one status to another is
// legal for the generic status setters.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal reports whether no further transitions may leave the status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true,
}

// ParseTimeOfDay validates an "HH:MM" slot time.
func ParseTimeOfDay(value string) error {
	_, err := time.Parse("15:04", value)
	if err != nil {
		return fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return nil
}

// NewAppointmentCode generates the human-readable appointment identifier:
// a date/time-derived prefix plus a random suffix. The random suffix keeps
// collisions negligible; the database still has a unique index on code.
func NewAppointmentCode(date time.Time, timeOfDay string) string {
	var buf [3]byte
	rand.Read(buf[:])
	return fmt.Sprintf("APT-%s-%s-%s",
		date.Format("20060102"),
		strings.ReplaceAll(timeOfDay, ":", ""),
		strings.ToUpper(hex.EncodeToString(buf[:])))
}

package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Item kinds on a prescription.
const (
	ItemMedicine = "medicine"
	ItemLabTest  = "lab_test"
)

var validItemKinds = map[string]bool{
	ItemMedicine: true,
	ItemLabTest:  true,
}

// Prescription is the doctor's record of a consultation outcome. Recording
// one against an appointment is what closes the appointment out.
type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Diagnosis     string     `db:"diagnosis" json:"diagnosis"`
	Notes         string     `db:"notes" json:"notes"`
	Items         []Item     `json:"items"`
	FollowUpDate  *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Item is one prescribed medicine or ordered lab test.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	Kind           string    `db:"kind" json:"kind"`
	Name           string    `db:"name" json:"name"`
	Dosage         string    `db:"dosage" json:"dosage,omitempty"`
	Frequency      string    `db:"frequency" json:"frequency,omitempty"`
	DurationDays   int       `db:"duration_days" json:"duration_days,omitempty"`
	Instructions   string    `db:"instructions" json:"instructions,omitempty"`
}

package casemgmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/rabiesresq/rabiesresq/internal/domain/triage"
)

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseActive    CaseStatus = "Active"
	CaseQueued    CaseStatus = "Queued"
	CasePending   CaseStatus = "Pending"
	CaseScheduled CaseStatus = "Scheduled" // legacy; still accepted by approve
	CaseNoShow    CaseStatus = "No Show"
	CaseCompleted CaseStatus = "Completed"
	CaseArchived  CaseStatus = "archived"
)

var caseStatuses = []CaseStatus{
	CaseActive, CaseQueued, CasePending, CaseScheduled, CaseNoShow, CaseCompleted, CaseArchived,
}

func (s CaseStatus) IsValid() bool {
	for _, v := range caseStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseCaseStatus normalizes a stored or user supplied value. Matching is
// case-insensitive and an empty value reads as Pending.
func ParseCaseStatus(s string) (CaseStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CasePending, nil
	}
	for _, v := range caseStatuses {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown case status %q", s)
}

// AppointmentStatus is the state of a single appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "Pending"
	AppointmentScheduled AppointmentStatus = "Scheduled"
	AppointmentApproved  AppointmentStatus = "Approved"
	AppointmentQueued    AppointmentStatus = "Queued"
	AppointmentCancelled AppointmentStatus = "Cancelled"
	AppointmentNoShow    AppointmentStatus = "No Show"
	AppointmentRemoved   AppointmentStatus = "Removed"
	AppointmentCompleted AppointmentStatus = "Completed"
)

var appointmentStatuses = []AppointmentStatus{
	AppointmentPending, AppointmentScheduled, AppointmentApproved, AppointmentQueued,
	AppointmentCancelled, AppointmentNoShow, AppointmentRemoved, AppointmentCompleted,
}

func (s AppointmentStatus) IsValid() bool {
	for _, v := range appointmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AppointmentPending, nil
	}
	for _, v := range appointmentStatuses {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Statuses the maintenance sweep acts on.
var (
	sweepCaseStatuses        = []CaseStatus{CasePending, CaseActive, CaseQueued}
	sweepAppointmentStatuses = []AppointmentStatus{AppointmentApproved, AppointmentPending, AppointmentQueued}

	// approve resets these case statuses to Pending.
	approvableCaseStatuses = []CaseStatus{CasePending, CaseQueued, CaseScheduled}
)

func caseStatusIn(s CaseStatus, set []CaseStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func appointmentStatusIn(s AppointmentStatus, set []AppointmentStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// statusStrings converts a status set into a text[] query argument.
func statusStrings[T ~string](set []T) []string {
	out := make([]string, len(set))
	for i, v := range set {
		out[i] = string(v)
	}
	return out
}

type Clinic struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Patient struct {
	ID          int64   `json:"id"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Address     *string `json:"address,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`

	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Gender                *string    `json:"gender,omitempty"`
	Allergies             *string    `json:"allergies,omitempty"`
	PreExistingConditions *string    `json:"pre_existing_conditions,omitempty"`
	CurrentMedications    *string    `json:"current_medications,omitempty"`
}

// Case is one exposure incident. RiskLevel is fixed at intake.
type Case struct {
	ID                       int64           `json:"id"`
	PatientID                int64           `json:"patient_id"`
	ClinicID                 int64           `json:"clinic_id"`
	ExposureDate             time.Time       `json:"exposure_date"`
	ExposureTime             *string         `json:"exposure_time,omitempty"`
	PlaceOfExposure          *string         `json:"place_of_exposure,omitempty"`
	AffectedArea             *string         `json:"affected_area,omitempty"`
	TypeOfExposure           string          `json:"type_of_exposure"`
	AnimalDetail             *string         `json:"animal_detail,omitempty"`
	AnimalCondition          *string         `json:"animal_condition,omitempty"`
	RiskLevel                triage.Category `json:"risk_level"`
	TetanusProphylaxisStatus *string         `json:"tetanus_prophylaxis_status,omitempty"`
	Status                   CaseStatus      `json:"case_status"`
	CreatedAt                time.Time       `json:"created_at"`
}

type PreScreening struct {
	ID                      int64      `json:"id"`
	CaseID                  int64      `json:"case_id"`
	WoundDescription        *string    `json:"wound_description,omitempty"`
	BleedingType            string     `json:"bleeding_type"`
	LocalTreatment          *string    `json:"local_treatment,omitempty"`
	PatientPrevImmunization *string    `json:"patient_prev_immunization,omitempty"`
	PrevVaccineDate         *time.Time `json:"prev_vaccine_date,omitempty"`
	TetanusDate             *time.Time `json:"tetanus_date,omitempty"`
	HRIGImmunization        bool       `json:"hrtig_immunization"`
	HRIGDate                *time.Time `json:"hrtig_date,omitempty"`
}

type Appointment struct {
	ID          int64             `json:"id"`
	PatientID   int64             `json:"patient_id"`
	ClinicID    int64             `json:"clinic_id"`
	CaseID      int64             `json:"case_id"`
	ScheduledAt time.Time         `json:"appointment_datetime"`
	Status      AppointmentStatus `json:"status"`
	Type        string            `json:"type"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Note struct {
	ID        int64     `json:"id"`
	CaseID    int64     `json:"case_id"`
	ClinicID  int64     `json:"clinic_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// DoseDays is the post-exposure vaccination schedule, in days from day 0.
var DoseDays = []int{0, 3, 7, 14, 28}

type Dose struct {
	ID             int64     `json:"id"`
	CaseID         int64     `json:"case_id"`
	ClinicID       int64     `json:"clinic_id"`
	Day            int       `json:"dose_day"`
	AdministeredOn time.Time `json:"administered_at"`
	VaccineBrand   *string   `json:"vaccine_brand,omitempty"`
	AdministeredBy string    `json:"administered_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// CaseDetail is the staff view of one case with its dependent records.
type CaseDetail struct {
	Case         *Case          `json:"case"`
	PreScreening *PreScreening  `json:"pre_screening,omitempty"`
	Appointments []*Appointment `json:"appointments"`
	Notes        []*Note        `json:"notes"`
	Doses        []*Dose        `json:"doses"`
}

// SweepResult reports what one maintenance run changed.
type SweepResult struct {
	ToNoShow            int `json:"to_no_show"`
	ArchivedFromNoShow  int `json:"archived_from_no_show"`
	AppointmentsNoShow  int `json:"appointments_no_show"`
	AppointmentsRemoved int `json:"appointments_removed"`
}

// CaseFilter narrows staff case listings. A zero Status lists every status.
type CaseFilter struct {
	Status CaseStatus
}

type AppointmentFilter struct {
	Status AppointmentStatus
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

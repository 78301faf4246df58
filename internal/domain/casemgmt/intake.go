package casemgmt

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rabiesresq/rabiesresq/internal/domain/triage"
)

const (
	// FormTypeAppointment asks for a pre-screening appointment along with the case.
	FormTypeAppointment = "appointment"
	FormTypeCase        = "case"

	appointmentTypePreScreening = "Pre-screening"
)

// IntakeForm is the patient pre-screening submission.
type IntakeForm struct {
	FormType                string `json:"form_type" form:"form_type"`
	ClinicID                int64  `json:"clinic_id" form:"clinic_id"`
	TypeOfExposure          string `json:"type_of_exposure" form:"type_of_exposure"`
	ExposureDate            string `json:"exposure_date" form:"exposure_date"`
	ExposureTime            string `json:"exposure_time" form:"exposure_time"`
	WoundDescription        string `json:"wound_description" form:"wound_description"`
	SpontaneousBleeding     string `json:"spontaneous_bleeding" form:"spontaneous_bleeding"`
	InducedBleeding         string `json:"induced_bleeding" form:"induced_bleeding"`
	PatientPrevImmunization string `json:"patient_prev_immunization" form:"patient_prev_immunization"`
	PrevVaccineDate         string `json:"prev_vaccine_date" form:"prev_vaccine_date"`
	AnimalType              string `json:"animal_type" form:"animal_type"`
	OtherAnimal             string `json:"other_animal" form:"other_animal"`
	AnimalStatus            string `json:"animal_status" form:"animal_status"`
	AnimalVaccination       string `json:"animal_vaccination" form:"animal_vaccination"`
	LocalTreatment          string `json:"local_treatment" form:"local_treatment"`
	OtherTreatment          string `json:"other_treatment" form:"other_treatment"`
	PlaceOfExposure         string `json:"place_of_exposure" form:"place_of_exposure"`
	PlaceOfExposureOther    string `json:"place_of_exposure_other" form:"place_of_exposure_other"`
	AffectedArea            string `json:"affected_area" form:"affected_area"`
	AffectedAreaOther       string `json:"affected_area_other" form:"affected_area_other"`
	TetanusImmunization     string `json:"tetanus_immunization" form:"tetanus_immunization"`
	TetanusDate             string `json:"tetanus_date" form:"tetanus_date"`
	HRIGImmunization        string `json:"hrtig_immunization" form:"hrtig_immunization"`
	HRIGDate                string `json:"hrtig_date" form:"hrtig_date"`

	// Victim info. Any non-empty value updates the patient record.
	FullName      string `json:"full_name" form:"full_name"`
	Age           string `json:"age" form:"age"`
	Barangay      string `json:"barangay" form:"barangay"`
	ContactNumber string `json:"contact_number" form:"contact_number"`
	EmailAddress  string `json:"email_address" form:"email_address"`
}

func (f *IntakeForm) normalize() {
	for _, p := range []*string{
		&f.FormType, &f.TypeOfExposure, &f.ExposureDate, &f.ExposureTime, &f.WoundDescription,
		&f.SpontaneousBleeding, &f.InducedBleeding, &f.PatientPrevImmunization, &f.PrevVaccineDate,
		&f.AnimalType, &f.OtherAnimal, &f.AnimalStatus, &f.AnimalVaccination, &f.LocalTreatment,
		&f.OtherTreatment, &f.PlaceOfExposure, &f.PlaceOfExposureOther, &f.AffectedArea,
		&f.AffectedAreaOther, &f.TetanusImmunization, &f.TetanusDate, &f.HRIGImmunization,
		&f.HRIGDate, &f.FullName, &f.Age, &f.Barangay, &f.ContactNumber, &f.EmailAddress,
	} {
		*p = strings.TrimSpace(*p)
	}
	f.EmailAddress = strings.ToLower(f.EmailAddress)
	if f.FormType == "" {
		f.FormType = FormTypeCase
	}
}

func (f *IntakeForm) hasVictimInfo() bool {
	return f.FullName != "" || f.Age != "" || f.Barangay != "" || f.ContactNumber != "" || f.EmailAddress != ""
}

// intakeDates holds the parsed optional and required dates of a form.
type intakeDates struct {
	exposure, prevVaccine, tetanus, hrig *time.Time
}

func (f *IntakeForm) validate() (*intakeDates, error) {
	v := NewValidationError()
	require := func(field, value, msg string) {
		if value == "" {
			v.Add(field, msg)
		}
	}
	require("type_of_exposure", f.TypeOfExposure, "Type of exposure is required.")
	require("exposure_date", f.ExposureDate, "Exposure date is required.")
	require("animal_type", f.AnimalType, "Type of animal is required.")
	require("animal_status", f.AnimalStatus, "Animal status is required.")
	require("local_treatment", f.LocalTreatment, "Local wound treatment is required.")
	require("place_of_exposure", f.PlaceOfExposure, "Place of exposure is required.")
	if f.PlaceOfExposure == "Other" && f.PlaceOfExposureOther == "" {
		v.Add("place_of_exposure_other", "Please specify the other place of exposure.")
	}
	require("affected_area", f.AffectedArea, "Affected area is required.")
	if f.AffectedArea == "Other" && f.AffectedAreaOther == "" {
		v.Add("affected_area_other", "Please specify the other affected area.")
	}
	require("tetanus_immunization", f.TetanusImmunization, "Tetanus immunization status is required.")
	require("hrtig_immunization", f.HRIGImmunization, "Human tetanus immunoglobulin status is required.")
	if f.HRIGImmunization == "Yes" && f.HRIGDate == "" {
		v.Add("hrtig_date", "HRIG date is required when Human Tetanus Immunoglobulin is Yes.")
	}
	if f.ClinicID <= 0 {
		v.Add("clinic_id", "Clinic is required.")
	}
	if f.Age != "" {
		if _, err := parseAge(f.Age); err != nil {
			v.Add("age", "Age must be a whole number between 0 and 2147483647.")
		}
	}

	dates := &intakeDates{}
	parse := func(field, value string) *time.Time {
		if value == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			v.Add(field, "Dates must be in YYYY-MM-DD format.")
			return nil
		}
		return &t
	}
	dates.exposure = parse("exposure_date", f.ExposureDate)
	dates.prevVaccine = parse("prev_vaccine_date", f.PrevVaccineDate)
	dates.tetanus = parse("tetanus_date", f.TetanusDate)
	if f.HRIGImmunization == "Yes" {
		dates.hrig = parse("hrtig_date", f.HRIGDate)
	}

	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}
	return dates, nil
}

// composite joins a choice with its free-text detail, e.g. "Others: Goat".
func composite(choice, trigger, detail string) string {
	if choice == trigger && detail != "" {
		return trigger + ": " + detail
	}
	return choice
}

// IntakeResult is what a submission created. Appointment is nil unless one
// was requested.
type IntakeResult struct {
	Case         *Case         `json:"case"`
	PreScreening *PreScreening `json:"pre_screening"`
	Appointment  *Appointment  `json:"appointment,omitempty"`
}

// SubmitIntake records a pre-screening submission for a patient: it
// classifies the exposure, creates the case and its pre-screening detail,
// and books a pre-screening appointment for tomorrow when asked to.
func (s *Service) SubmitIntake(ctx context.Context, patientID int64, form IntakeForm) (*IntakeResult, error) {
	form.normalize()
	dates, err := form.validate()
	if err != nil {
		return nil, err
	}

	bleeding := triage.BleedingTypeFrom(form.SpontaneousBleeding, form.InducedBleeding)
	risk := triage.Classify(triage.Exposure{
		TypeOfExposure:    form.TypeOfExposure,
		AffectedArea:      form.AffectedArea,
		WoundDescription:  form.WoundDescription,
		BleedingType:      bleeding,
		AnimalStatus:      form.AnimalStatus,
		AnimalVaccination: form.AnimalVaccination,
		PriorImmunization: form.PatientPrevImmunization,
	})

	wantsAppointment := form.FormType == FormTypeAppointment
	status := CasePending
	if wantsAppointment {
		status = CaseQueued
	}

	res := &IntakeResult{}
	err = s.inTx(ctx, "submit intake", func(ctx context.Context) error {
		if _, err := s.clinics.GetByID(ctx, form.ClinicID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("clinic_id", "Selected clinic does not exist.")
			}
			return err
		}

		patient, err := s.patients.GetByID(ctx, patientID)
		if err != nil {
			return err
		}
		if form.hasVictimInfo() {
			applyVictimInfo(patient, &form)
			if err := s.patients.UpdateContact(ctx, patient); err != nil {
				return err
			}
		}

		c := &Case{
			PatientID:                patientID,
			ClinicID:                 form.ClinicID,
			ExposureDate:             *dates.exposure,
			ExposureTime:             strPtr(form.ExposureTime),
			PlaceOfExposure:          strPtr(composite(form.PlaceOfExposure, "Other", form.PlaceOfExposureOther)),
			AffectedArea:             strPtr(composite(form.AffectedArea, "Other", form.AffectedAreaOther)),
			TypeOfExposure:           form.TypeOfExposure,
			AnimalDetail:             strPtr(composite(form.AnimalType, "Others", form.OtherAnimal)),
			AnimalCondition:          strPtr(form.AnimalStatus),
			RiskLevel:                risk,
			TetanusProphylaxisStatus: strPtr(form.TetanusImmunization),
			Status:                   status,
		}
		if err := s.cases.Create(ctx, c); err != nil {
			return err
		}
		res.Case = c

		ps := &PreScreening{
			CaseID:                  c.ID,
			WoundDescription:        strPtr(form.WoundDescription),
			BleedingType:            bleeding,
			LocalTreatment:          strPtr(composite(form.LocalTreatment, "Others", form.OtherTreatment)),
			PatientPrevImmunization: strPtr(form.PatientPrevImmunization),
			PrevVaccineDate:         dates.prevVaccine,
			TetanusDate:             dates.tetanus,
			HRIGImmunization:        form.HRIGImmunization == "Yes",
			HRIGDate:                dates.hrig,
		}
		if err := s.cases.CreatePreScreening(ctx, ps); err != nil {
			return err
		}
		res.PreScreening = ps

		if !wantsAppointment {
			return nil
		}
		a := &Appointment{
			PatientID:   patientID,
			ClinicID:    form.ClinicID,
			CaseID:      c.ID,
			ScheduledAt: s.defaultAppointmentTime(),
			Status:      AppointmentQueued,
			Type:        appointmentTypePreScreening,
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		res.Appointment = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := s.logger.Info().Int64("clinic_id", form.ClinicID).Int64("patient_id", patientID).
		Int64("case_id", res.Case.ID).Str("risk_level", string(risk))
	if res.Appointment != nil {
		evt = evt.Int64("appointment_id", res.Appointment.ID)
	}
	evt.Msg("intake submitted")
	return res, nil
}

// defaultAppointmentTime is tomorrow at the configured hour, clinic-local.
// parseAge accepts a non-negative integer that fits the INTEGER column.
func parseAge(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative age")
	}
	return int(n), nil
}

func (s *Service) defaultAppointmentTime() time.Time {
	now := s.now().In(s.opts.Location)
	return time.Date(now.Year(), now.Month(), now.Day()+1, s.opts.AppointmentHour, 0, 0, 0, s.opts.Location)
}

// applyVictimInfo overwrites only the patient fields the form filled in.
// The name is split on the first space into first and last name.
func applyVictimInfo(p *Patient, f *IntakeForm) {
	if f.FullName != "" {
		first, last, _ := strings.Cut(f.FullName, " ")
		if first != "" {
			p.FirstName = &first
		}
		if last != "" {
			p.LastName = &last
		}
	}
	if f.Age != "" {
		if age, err := parseAge(f.Age); err == nil {
			p.Age = &age
		}
	}
	if f.Barangay != "" {
		p.Address = &f.Barangay
	}
	if f.ContactNumber != "" {
		p.PhoneNumber = &f.ContactNumber
	}
	if f.EmailAddress != "" {
		p.Email = &f.EmailAddress
	}
}

// -- Patient-side operations --

// CancelByPatient cancels one of the patient's own appointments.
func (s *Service) CancelByPatient(ctx context.Context, appointmentID, patientID int64) (*Appointment, error) {
	var appt *Appointment
	err := s.inTx(ctx, "cancel appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetForPatient(ctx, appointmentID, patientID)
		if err != nil {
			return err
		}
		if a.Status == AppointmentCancelled {
			return ErrAlreadyCancelled
		}
		if err := s.appointments.SetStatus(ctx, a.ID, AppointmentCancelled); err != nil {
			return err
		}
		a.Status = AppointmentCancelled
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", patientID).Int64("appointment_id", appointmentID).Msg("appointment cancelled by patient")
	return appt, nil
}

func (s *Service) ListPatientCases(ctx context.Context, patientID int64) ([]*Case, error) {
	var out []*Case
	err := s.inTx(ctx, "list patient cases", func(ctx context.Context) error {
		var err error
		out, err = s.cases.ListByPatient(ctx, patientID)
		return err
	})
	return out, err
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID int64) ([]*Appointment, error) {
	var out []*Appointment
	err := s.inTx(ctx, "list patient appointments", func(ctx context.Context) error {
		var err error
		out, err = s.appointments.ListByPatient(ctx, patientID)
		return err
	})
	return out, err
}

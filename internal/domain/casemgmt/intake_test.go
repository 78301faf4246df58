package casemgmt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabiesresq/rabiesresq/internal/domain/triage"
)

func validForm(clinicID int64) IntakeForm {
	return IntakeForm{
		FormType:            FormTypeAppointment,
		ClinicID:            clinicID,
		TypeOfExposure:      "Bite",
		ExposureDate:        "2026-03-09",
		ExposureTime:        "18:45",
		WoundDescription:    "Punctured",
		SpontaneousBleeding: "No",
		InducedBleeding:     "No",
		AnimalType:          "Dog",
		AnimalStatus:        "Sick",
		AnimalVaccination:   "Unknown",
		LocalTreatment:      "Washed with soap",
		PlaceOfExposure:     "Home",
		AffectedArea:        "Hand",
		TetanusImmunization: "No",
		HRIGImmunization:    "No",
	}
}

func TestSubmitIntake_BiteFromSickAnimalWithAppointment(t *testing.T) {
	svc, db := newTestService()
	clinic := db.addClinic("Main")
	patient := db.addPatient()

	res, err := svc.SubmitIntake(context.Background(), patient, validForm(clinic))
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}

	c := db.cases[res.Case.ID]
	if c.RiskLevel != triage.CategoryIII {
		t.Errorf("expected Category III, got %q", c.RiskLevel)
	}
	if c.Status != CaseQueued {
		t.Errorf("expected Queued case, got %q", c.Status)
	}
	if c.PatientID != patient || c.ClinicID != clinic {
		t.Errorf("case not linked to patient/clinic: %+v", c)
	}

	if res.Appointment == nil {
		t.Fatal("expected an appointment")
	}
	a := db.appts[res.Appointment.ID]
	if a.Status != AppointmentQueued || a.Type != "Pre-screening" || a.CaseID != c.ID {
		t.Errorf("unexpected appointment: %+v", a)
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, manila)
	if !a.ScheduledAt.Equal(want) {
		t.Errorf("expected appointment at %v, got %v", want, a.ScheduledAt)
	}

	ps, ok := db.screenings[c.ID]
	if !ok {
		t.Fatal("expected pre-screening detail")
	}
	if ps.BleedingType != triage.BleedingNone {
		t.Errorf("expected bleeding None, got %q", ps.BleedingType)
	}
	if ps.HRIGImmunization || ps.HRIGDate != nil {
		t.Errorf("expected no HRIG, got %+v", ps)
	}
	if db.txs != 1 {
		t.Errorf("expected one transaction, got %d", db.txs)
	}
}

func TestSubmitIntake_CaseOnly(t *testing.T) {
	svc, db := newTestService()
	clinic := db.addClinic("Main")
	form := validForm(clinic)
	form.FormType = ""
	form.TypeOfExposure = "Lick on intact skin"
	form.WoundDescription = ""
	form.AnimalStatus = "Healthy"
	form.InducedBleeding = "Yes"

	res, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	if res.Appointment != nil || len(db.appts) != 0 {
		t.Error("did not expect an appointment")
	}
	if res.Case.Status != CasePending {
		t.Errorf("expected Pending case, got %q", res.Case.Status)
	}
	if res.Case.RiskLevel != triage.CategoryII {
		t.Errorf("expected Category II from induced bleeding, got %q", res.Case.RiskLevel)
	}
	if res.PreScreening.BleedingType != triage.BleedingInduced {
		t.Errorf("expected Induced, got %q", res.PreScreening.BleedingType)
	}
}

func TestSubmitIntake_CompositeFields(t *testing.T) {
	svc, db := newTestService()
	form := validForm(db.addClinic("Main"))
	form.AnimalType = "Others"
	form.OtherAnimal = "Goat"
	form.LocalTreatment = "Others"
	form.OtherTreatment = "Herbal poultice"
	form.PlaceOfExposure = "Other"
	form.PlaceOfExposureOther = "Market"
	form.AffectedArea = "Other"
	form.AffectedAreaOther = "Back"

	res, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	c := res.Case
	checks := map[string]*string{
		"Others: Goat":            c.AnimalDetail,
		"Other: Market":           c.PlaceOfExposure,
		"Other: Back":             c.AffectedArea,
		"Others: Herbal poultice": res.PreScreening.LocalTreatment,
	}
	for want, got := range checks {
		if got == nil || *got != want {
			t.Errorf("expected %q, got %v", want, got)
		}
	}
}

func TestSubmitIntake_ClassifiesOnRawAffectedArea(t *testing.T) {
	svc, db := newTestService()
	form := validForm(db.addClinic("Main"))
	form.TypeOfExposure = "Scratch"
	form.WoundDescription = ""
	form.AnimalStatus = "Healthy"
	form.AffectedArea = "Neck"

	res, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	if res.Case.RiskLevel != triage.CategoryIII {
		t.Errorf("expected Category III for neck exposure, got %q", res.Case.RiskLevel)
	}
}

func TestSubmitIntake_CollectsValidationErrors(t *testing.T) {
	svc, db := newTestService()
	patient := db.addPatient()
	form := IntakeForm{
		PlaceOfExposure:  "Other",
		AffectedArea:     "Other",
		HRIGImmunization: "Yes",
		Age:              "twelve",
	}

	_, err := svc.SubmitIntake(context.Background(), patient, form)
	ve := expectValidation(t, err)
	for _, f := range []string{
		"type_of_exposure", "exposure_date", "animal_type", "animal_status", "local_treatment",
		"place_of_exposure_other", "affected_area_other", "tetanus_immunization", "hrtig_date",
		"clinic_id", "age",
	} {
		if len(ve.Fields[f]) == 0 {
			t.Errorf("expected a message for %s", f)
		}
	}
	if len(db.cases) != 0 || len(db.appts) != 0 {
		t.Error("nothing may be written on validation failure")
	}
	if db.txs != 0 {
		t.Error("validation happens before any transaction")
	}
}

func TestSubmitIntake_BadDates(t *testing.T) {
	svc, db := newTestService()
	form := validForm(db.addClinic("Main"))
	form.ExposureDate = "March 9"
	form.HRIGImmunization = "Yes"
	form.HRIGDate = "2026/03/09"

	ve := expectValidation(t, func() error {
		_, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
		return err
	}())
	if len(ve.Fields["exposure_date"]) == 0 || len(ve.Fields["hrtig_date"]) == 0 {
		t.Errorf("expected date messages, got %v", ve.Fields)
	}
}

func TestSubmitIntake_AgeOutOfRange(t *testing.T) {
	for _, age := range []string{"3000000000", "-1", "9223372036854775808", "12.5"} {
		t.Run(age, func(t *testing.T) {
			svc, db := newTestService()
			form := validForm(db.addClinic("Main"))
			form.Age = age

			_, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
			ve := expectValidation(t, err)
			if len(ve.Fields["age"]) == 0 {
				t.Errorf("expected an age message, got %v", ve.Fields)
			}
			if db.txs != 0 || len(db.cases) != 0 {
				t.Error("validation happens before any transaction")
			}
		})
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"34", 34, false},
		{"2147483647", 2147483647, false},
		{"2147483648", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseAge(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAge(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAge(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSubmitIntake_UnknownClinic(t *testing.T) {
	svc, db := newTestService()
	_, err := svc.SubmitIntake(context.Background(), db.addPatient(), validForm(404))
	ve := expectValidation(t, err)
	if len(ve.Fields["clinic_id"]) == 0 {
		t.Errorf("expected clinic message, got %v", ve.Fields)
	}
}

func TestSubmitIntake_UpdatesVictimInfo(t *testing.T) {
	svc, db := newTestService()
	patient := db.addPatient()
	phone := "0917-000-0000"
	p := db.patients[patient]
	p.PhoneNumber = &phone
	db.patients[patient] = p

	form := validForm(db.addClinic("Main"))
	form.FullName = "Juan Dela Cruz"
	form.Age = "34"
	form.Barangay = "San Roque"
	form.EmailAddress = "  Juan@Example.COM "

	if _, err := svc.SubmitIntake(context.Background(), patient, form); err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	got := db.patients[patient]
	if got.FirstName == nil || *got.FirstName != "Juan" {
		t.Errorf("expected first name Juan, got %v", got.FirstName)
	}
	if got.LastName == nil || *got.LastName != "Dela Cruz" {
		t.Errorf("expected last name split on first space, got %v", got.LastName)
	}
	if got.Age == nil || *got.Age != 34 {
		t.Errorf("expected age 34, got %v", got.Age)
	}
	if got.Email == nil || *got.Email != "juan@example.com" {
		t.Errorf("expected lower-cased email, got %v", got.Email)
	}
	if got.PhoneNumber == nil || *got.PhoneNumber != phone {
		t.Errorf("expected phone kept, got %v", got.PhoneNumber)
	}
}

func TestSubmitIntake_RollsBackOnAppointmentFailure(t *testing.T) {
	svc, db := newTestService()
	form := validForm(db.addClinic("Main"))
	db.fail["appointments.Create"] = errors.New("constraint violation")

	_, err := svc.SubmitIntake(context.Background(), db.addPatient(), form)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %v", err)
	}
	if len(db.cases) != 0 || len(db.screenings) != 0 {
		t.Errorf("expected case and pre-screening rolled back, got %d cases %d screenings", len(db.cases), len(db.screenings))
	}
}

func TestCancelByPatient(t *testing.T) {
	svc, db := newTestService()
	clinic := db.addClinic("Main")
	patient := db.addPatient()
	c := db.addCase(clinic, patient, CaseQueued)
	a := db.addAppt(c, AppointmentQueued, testNow.Add(24*time.Hour))

	appt, err := svc.CancelByPatient(context.Background(), a, patient)
	if err != nil {
		t.Fatalf("CancelByPatient: %v", err)
	}
	if appt.Status != AppointmentCancelled || db.appts[a].Status != AppointmentCancelled {
		t.Errorf("expected Cancelled, got %q", db.appts[a].Status)
	}

	if _, err := svc.CancelByPatient(context.Background(), a, patient); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("expected ErrAlreadyCancelled, got %v", err)
	}
	if _, err := svc.CancelByPatient(context.Background(), a, db.addPatient()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another patient, got %v", err)
	}
}

func TestListPatientRecords(t *testing.T) {
	svc, db := newTestService()
	clinic := db.addClinic("Main")
	patient := db.addPatient()
	c1 := db.addCase(clinic, patient, CasePending)
	c2 := db.addCase(clinic, patient, CaseQueued)
	db.addCase(clinic, db.addPatient(), CasePending)
	db.addAppt(c1, AppointmentApproved, testNow.Add(-24*time.Hour))
	newest := db.addAppt(c2, AppointmentQueued, testNow.Add(24*time.Hour))

	cases, err := svc.ListPatientCases(context.Background(), patient)
	if err != nil {
		t.Fatalf("ListPatientCases: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != c2 {
		t.Errorf("expected the patient's two cases newest first, got %d", len(cases))
	}

	appts, err := svc.ListPatientAppointments(context.Background(), patient)
	if err != nil {
		t.Fatalf("ListPatientAppointments: %v", err)
	}
	if len(appts) != 2 || appts[0].ID != newest {
		t.Errorf("expected newest appointment first, got %+v", appts)
	}
}

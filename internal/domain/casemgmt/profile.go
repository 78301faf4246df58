package casemgmt

import (
	"context"
	"strings"
	"time"
)

// ProfileForm is the patient's self-service profile. Every field is written
// on update, so an empty value clears the stored one. Email is the exception
// and is required.
type ProfileForm struct {
	FirstName             string `json:"first_name" form:"first_name"`
	LastName              string `json:"last_name" form:"last_name"`
	DateOfBirth           string `json:"date_of_birth" form:"date_of_birth"`
	Gender                string `json:"gender" form:"gender"`
	Address               string `json:"address" form:"address"`
	PhoneNumber           string `json:"phone_number" form:"phone_number"`
	Email                 string `json:"email" form:"email"`
	Allergies             string `json:"allergies" form:"allergies"`
	PreExistingConditions string `json:"pre_existing_conditions" form:"pre_existing_conditions"`
	CurrentMedications    string `json:"current_medications" form:"current_medications"`
}

func (f *ProfileForm) normalize() {
	for _, p := range []*string{
		&f.FirstName, &f.LastName, &f.DateOfBirth, &f.Gender, &f.Address, &f.PhoneNumber,
		&f.Email, &f.Allergies, &f.PreExistingConditions, &f.CurrentMedications,
	} {
		*p = strings.TrimSpace(*p)
	}
	f.Email = strings.ToLower(f.Email)
}

func (f *ProfileForm) validate(today time.Time) (*time.Time, error) {
	v := NewValidationError()
	switch {
	case f.Email == "":
		v.Add("email", "Email is required.")
	case !strings.Contains(f.Email, "@"):
		v.Add("email", "Email must be valid.")
	}

	var dob *time.Time
	if f.DateOfBirth != "" {
		t, err := time.Parse("2006-01-02", f.DateOfBirth)
		switch {
		case err != nil:
			v.Add("date_of_birth", "Dates must be in YYYY-MM-DD format.")
		case t.After(today):
			v.Add("date_of_birth", "Date of birth cannot be in the future.")
		default:
			dob = &t
		}
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}
	return dob, nil
}

// GetPatientProfile returns the patient's own record.
func (s *Service) GetPatientProfile(ctx context.Context, patientID int64) (*Patient, error) {
	var p *Patient
	err := s.inTx(ctx, "get patient profile", func(ctx context.Context) error {
		var err error
		p, err = s.patients.GetByID(ctx, patientID)
		return err
	})
	return p, err
}

// UpdatePatientProfile validates the form and overwrites the profile fields.
// Age and password are not part of the profile.
func (s *Service) UpdatePatientProfile(ctx context.Context, patientID int64, form ProfileForm) (*Patient, error) {
	form.normalize()
	now := s.now().In(s.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dob, err := form.validate(today)
	if err != nil {
		return nil, err
	}

	var out *Patient
	err = s.inTx(ctx, "update patient profile", func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, patientID)
		if err != nil {
			return err
		}
		p.FirstName = strPtr(form.FirstName)
		p.LastName = strPtr(form.LastName)
		p.DateOfBirth = dob
		p.Gender = strPtr(form.Gender)
		p.Address = strPtr(form.Address)
		p.PhoneNumber = strPtr(form.PhoneNumber)
		p.Email = strPtr(form.Email)
		p.Allergies = strPtr(form.Allergies)
		p.PreExistingConditions = strPtr(form.PreExistingConditions)
		p.CurrentMedications = strPtr(form.CurrentMedications)
		if err := s.patients.UpdateProfile(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", patientID).Msg("patient profile updated")
	return out, nil
}

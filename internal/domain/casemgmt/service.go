package casemgmt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options carries the clinic policy the service applies.
type Options struct {
	Location        *time.Location
	NoShowGrace     time.Duration
	ArchiveAfter    time.Duration
	AppointmentHour int
}

// DefaultOptions matches the clinic's standing policy.
func DefaultOptions() Options {
	return Options{
		Location:        time.UTC,
		NoShowGrace:     10 * time.Hour,
		ArchiveAfter:    24 * time.Hour,
		AppointmentHour: 9,
	}
}

// Repositories groups the stores the service needs.
type Repositories struct {
	Clinics      ClinicRepository
	Patients     PatientRepository
	Cases        CaseRepository
	Appointments AppointmentRepository
	Notes        NoteRepository
	Doses        DoseRepository
}

// Service owns the case and appointment lifecycle. Every public method runs
// in exactly one transaction.
type Service struct {
	tx           Transactor
	clinics      ClinicRepository
	patients     PatientRepository
	cases        CaseRepository
	appointments AppointmentRepository
	notes        NoteRepository
	doses        DoseRepository
	opts         Options
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(tx Transactor, repos Repositories, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		tx:           tx,
		clinics:      repos.Clinics,
		patients:     repos.Patients,
		cases:        repos.Cases,
		appointments: repos.Appointments,
		notes:        repos.Notes,
		doses:        repos.Doses,
		opts:         opts,
		logger:       logger.With().Str("component", "casemgmt").Logger(),
		now:          time.Now,
	}
}

func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return wrapStorage(op, s.tx.InTx(ctx, fn))
}

// Approve confirms an appointment. A case waiting on it (Pending, Queued or
// the legacy Scheduled) moves to Pending.
func (s *Service) Approve(ctx context.Context, appointmentID, clinicID int64) (*Appointment, error) {
	var appt *Appointment
	err := s.inTx(ctx, "approve appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetForClinic(ctx, appointmentID, clinicID)
		if err != nil {
			return err
		}
		if err := s.appointments.SetStatus(ctx, a.ID, AppointmentApproved); err != nil {
			return err
		}
		a.Status = AppointmentApproved

		c, err := s.cases.GetForClinic(ctx, a.CaseID, clinicID)
		if err != nil {
			return err
		}
		if caseStatusIn(c.Status, approvableCaseStatuses) && c.Status != CasePending {
			if err := s.cases.SetStatus(ctx, c.ID, clinicID, CasePending); err != nil {
				return err
			}
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("appointment_id", appointmentID).
		Int64("case_id", appt.CaseID).Msg("appointment approved")
	return appt, nil
}

// Remove takes an appointment off the schedule. The case is left as is.
func (s *Service) Remove(ctx context.Context, appointmentID, clinicID int64) (*Appointment, error) {
	var appt *Appointment
	err := s.inTx(ctx, "remove appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetForClinic(ctx, appointmentID, clinicID)
		if err != nil {
			return err
		}
		if err := s.appointments.SetStatus(ctx, a.ID, AppointmentRemoved); err != nil {
			return err
		}
		a.Status = AppointmentRemoved
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("appointment_id", appointmentID).Msg("appointment removed")
	return appt, nil
}

// ParseSchedule reads a YYYY-MM-DD date and HH:MM time as clinic-local.
func ParseSchedule(date, clock string, loc *time.Location) (time.Time, error) {
	v := NewValidationError()
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		v.Add("date", "Date must be in YYYY-MM-DD format.")
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		v.Add("time", "Time must be in HH:MM format.")
	}
	if err := v.ErrOrNil(); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
}

// Reschedule moves an appointment. Its status is not changed.
func (s *Service) Reschedule(ctx context.Context, appointmentID, clinicID int64, date, clock string) (*Appointment, error) {
	at, err := ParseSchedule(date, clock, s.opts.Location)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	err = s.inTx(ctx, "reschedule appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetForClinic(ctx, appointmentID, clinicID)
		if err != nil {
			return err
		}
		if err := s.appointments.SetScheduledAt(ctx, a.ID, at); err != nil {
			return err
		}
		a.ScheduledAt = at
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("appointment_id", appointmentID).
		Time("appointment_datetime", at).Msg("appointment rescheduled")
	return appt, nil
}

// Complete closes a case and its most recently scheduled appointment.
func (s *Service) Complete(ctx context.Context, caseID, clinicID int64) (*Case, error) {
	var out *Case
	err := s.inTx(ctx, "complete case", func(ctx context.Context) error {
		c, err := s.cases.GetForClinic(ctx, caseID, clinicID)
		if err != nil {
			return err
		}
		if c.Status == CaseArchived {
			return invalid("case_status", "An archived case cannot be completed.")
		}
		if err := s.cases.SetStatus(ctx, c.ID, clinicID, CaseCompleted); err != nil {
			return err
		}
		c.Status = CaseCompleted

		latest, err := s.appointments.LatestForCase(ctx, c.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			if err := s.appointments.SetStatus(ctx, latest.ID, AppointmentCompleted); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("case_id", caseID).Msg("case completed")
	return out, nil
}

// Archive archives a case directly. Unlike the maintenance sweep it leaves
// the case's appointments untouched.
func (s *Service) Archive(ctx context.Context, caseID, clinicID int64) (*Case, error) {
	var out *Case
	err := s.inTx(ctx, "archive case", func(ctx context.Context) error {
		c, err := s.cases.GetForClinic(ctx, caseID, clinicID)
		if err != nil {
			return err
		}
		if c.Status == CaseCompleted {
			return invalid("case_status", "A completed case cannot be archived.")
		}
		if err := s.cases.SetStatus(ctx, c.ID, clinicID, CaseArchived); err != nil {
			return err
		}
		c.Status = CaseArchived
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("case_id", caseID).Msg("case archived")
	return out, nil
}

// -- Staff reads --

func (s *Service) ListCases(ctx context.Context, clinicID int64, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	var items []*Case
	var total int
	err := s.inTx(ctx, "list cases", func(ctx context.Context) error {
		var err error
		items, total, err = s.cases.ListByClinic(ctx, clinicID, f, limit, offset)
		return err
	})
	return items, total, err
}

func (s *Service) ListAppointments(ctx context.Context, clinicID int64, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var items []*Appointment
	var total int
	err := s.inTx(ctx, "list appointments", func(ctx context.Context) error {
		var err error
		items, total, err = s.appointments.ListByClinic(ctx, clinicID, f, limit, offset)
		return err
	})
	return items, total, err
}

func (s *Service) GetCaseDetail(ctx context.Context, caseID, clinicID int64) (*CaseDetail, error) {
	d := &CaseDetail{}
	err := s.inTx(ctx, "get case detail", func(ctx context.Context) error {
		var err error
		if d.Case, err = s.cases.GetForClinic(ctx, caseID, clinicID); err != nil {
			return err
		}
		d.PreScreening, err = s.cases.GetPreScreening(ctx, caseID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if d.Appointments, err = s.appointments.ListByCase(ctx, caseID); err != nil {
			return err
		}
		if d.Notes, err = s.notes.ListByCase(ctx, caseID); err != nil {
			return err
		}
		d.Doses, err = s.doses.ListByCase(ctx, caseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Dashboard counts the clinic's cases per status. Every known status is
// present, zero or not.
func (s *Service) Dashboard(ctx context.Context, clinicID int64) (map[CaseStatus]int, error) {
	var counts map[CaseStatus]int
	err := s.inTx(ctx, "dashboard", func(ctx context.Context) error {
		var err error
		counts, err = s.cases.CountByStatus(ctx, clinicID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[CaseStatus]int, len(caseStatuses))
	for _, st := range caseStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

// -- Notes & doses --

func (s *Service) AddNote(ctx context.Context, caseID, clinicID int64, actorID, body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body", "Note text is required.")
	}
	n := &Note{CaseID: caseID, ClinicID: clinicID, AuthorID: actorID, Body: body}
	err := s.inTx(ctx, "add note", func(ctx context.Context) error {
		if _, err := s.cases.GetForClinic(ctx, caseID, clinicID); err != nil {
			return err
		}
		return s.notes.Create(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("case_id", caseID).Str("actor_id", actorID).Msg("case note added")
	return n, nil
}

// DoseInput is a staff entry for one vaccination dose.
type DoseInput struct {
	Day            int    `json:"dose_day" form:"dose_day"`
	AdministeredOn string `json:"administered_at" form:"administered_at"`
	Brand          string `json:"vaccine_brand" form:"vaccine_brand"`
}

func (s *Service) RecordDose(ctx context.Context, caseID, clinicID int64, actorID string, in DoseInput) (*Dose, error) {
	v := NewValidationError()
	validDay := false
	for _, d := range DoseDays {
		if in.Day == d {
			validDay = true
		}
	}
	if !validDay {
		v.Add("dose_day", fmt.Sprintf("Dose day must be one of %v.", DoseDays))
	}
	on, err := time.Parse("2006-01-02", strings.TrimSpace(in.AdministeredOn))
	if err != nil {
		v.Add("administered_at", "Administration date must be in YYYY-MM-DD format.")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	d := &Dose{
		CaseID:         caseID,
		ClinicID:       clinicID,
		Day:            in.Day,
		AdministeredOn: on,
		VaccineBrand:   strPtr(strings.TrimSpace(in.Brand)),
		AdministeredBy: actorID,
	}
	err = s.inTx(ctx, "record dose", func(ctx context.Context) error {
		c, err := s.cases.GetForClinic(ctx, caseID, clinicID)
		if err != nil {
			return err
		}
		if c.Status == CaseArchived {
			return invalid("case_status", "Doses cannot be recorded on an archived case.")
		}
		return s.doses.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("clinic_id", clinicID).Int64("case_id", caseID).Int("dose_day", d.Day).
		Str("actor_id", actorID).Msg("vaccination dose recorded")
	return d, nil
}

// CreateClinic registers a clinic.
func (s *Service) CreateClinic(ctx context.Context, name, address string) (*Clinic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "Clinic name is required.")
	}
	c := &Clinic{Name: name, Address: strPtr(strings.TrimSpace(address))}
	if err := s.inTx(ctx, "create clinic", func(ctx context.Context) error {
		return s.clinics.Create(ctx, c)
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListClinics(ctx context.Context) ([]*Clinic, error) {
	var out []*Clinic
	err := s.inTx(ctx, "list clinics", func(ctx context.Context) error {
		var err error
		out, err = s.clinics.List(ctx)
		return err
	})
	return out, err
}

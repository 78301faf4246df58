package casemgmt

import (
	"context"
	"time"
)

// Repositories return ErrNotFound for missing rows and *StorageError for
// driver failures. Methods taking a clinicID only see rows of that clinic.

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id int64) (*Clinic, error)
	List(ctx context.Context) ([]*Clinic, error)
}

type PatientRepository interface {
	GetByID(ctx context.Context, id int64) (*Patient, error)
	UpdateContact(ctx context.Context, p *Patient) error
	// UpdateProfile writes the self-service profile columns. Age is untouched.
	UpdateProfile(ctx context.Context, p *Patient) error
}

type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	GetForClinic(ctx context.Context, id, clinicID int64) (*Case, error)
	SetStatus(ctx context.Context, id, clinicID int64, status CaseStatus) error
	ListByClinic(ctx context.Context, clinicID int64, f CaseFilter, limit, offset int) ([]*Case, int, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*Case, error)
	CountByStatus(ctx context.Context, clinicID int64) (map[CaseStatus]int, error)

	CreatePreScreening(ctx context.Context, p *PreScreening) error
	GetPreScreening(ctx context.Context, caseID int64) (*PreScreening, error)

	// MarkNoShow moves sweepable cases with a sweepable appointment at or
	// before cutoff to No Show and returns their ids.
	MarkNoShow(ctx context.Context, clinicID int64, cutoff time.Time) ([]int64, error)
	// ArchiveNoShows archives No Show cases with any appointment at or
	// before cutoff and returns their ids.
	ArchiveNoShows(ctx context.Context, clinicID int64, cutoff time.Time) ([]int64, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetForClinic(ctx context.Context, id, clinicID int64) (*Appointment, error)
	GetForPatient(ctx context.Context, id, patientID int64) (*Appointment, error)
	SetStatus(ctx context.Context, id int64, status AppointmentStatus) error
	SetScheduledAt(ctx context.Context, id int64, at time.Time) error
	// LatestForCase returns the appointment with the latest scheduled time.
	LatestForCase(ctx context.Context, caseID int64) (*Appointment, error)
	ListByCase(ctx context.Context, caseID int64) ([]*Appointment, error)
	ListByClinic(ctx context.Context, clinicID int64, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error)

	// MarkNoShowForCases sets sweepable appointments of the given cases to
	// No Show. RemoveForCases sets every appointment of the cases to Removed.
	MarkNoShowForCases(ctx context.Context, caseIDs []int64) (int, error)
	RemoveForCases(ctx context.Context, caseIDs []int64) (int, error)
}

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	ListByCase(ctx context.Context, caseID int64) ([]*Note, error)
}

type DoseRepository interface {
	Create(ctx context.Context, d *Dose) error
	ListByCase(ctx context.Context, caseID int64) ([]*Dose, error)
}

// Transactor runs fn in one transaction. *db.TxRunner satisfies it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

package casemgmt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rabiesresq/rabiesresq/internal/domain/triage"
	"github.com/rabiesresq/rabiesresq/internal/platform/db"
)

const pgUniqueViolation = "23505"

func storageErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}

// =========== Clinic Repository ===========

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository { return &clinicRepoPG{pool: pool} }

func (r *clinicRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinics (name, address) VALUES ($1, $2)
		RETURNING id, created_at`, c.Name, c.Address).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return storageErr("create clinic", err)
	}
	return nil
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id int64) (*Clinic, error) {
	var c Clinic
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, address, created_at FROM clinics WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt)
	if err != nil {
		return nil, storageErr("get clinic", err)
	}
	return &c, nil
}

func (r *clinicRepoPG) List(ctx context.Context) ([]*Clinic, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, address, created_at FROM clinics ORDER BY id`)
	if err != nil {
		return nil, storageErr("list clinics", err)
	}
	defer rows.Close()
	var out []*Clinic
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.CreatedAt); err != nil {
			return nil, storageErr("scan clinic", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list clinics", err)
	}
	return out, nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, age, address, phone_number, email,
			date_of_birth, gender, allergies, pre_existing_conditions, current_medications
		FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Age, &p.Address, &p.PhoneNumber, &p.Email,
			&p.DateOfBirth, &p.Gender, &p.Allergies, &p.PreExistingConditions, &p.CurrentMedications)
	if err != nil {
		return nil, storageErr("get patient", err)
	}
	return &p, nil
}

func (r *patientRepoPG) UpdateContact(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, age=$4, address=$5, phone_number=$6, email=$7
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Age, p.Address, p.PhoneNumber, p.Email)
	if err != nil {
		return storageErr("update patient", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) UpdateProfile(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5, address=$6,
			phone_number=$7, email=$8, allergies=$9, pre_existing_conditions=$10, current_medications=$11
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Address,
		p.PhoneNumber, p.Email, p.Allergies, p.PreExistingConditions, p.CurrentMedications)
	if err != nil {
		return storageErr("update patient profile", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Case Repository ===========

type caseRepoPG struct{ pool *pgxpool.Pool }

func NewCaseRepoPG(pool *pgxpool.Pool) CaseRepository { return &caseRepoPG{pool: pool} }

func (r *caseRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const caseCols = `c.id, c.patient_id, c.clinic_id, c.exposure_date, c.exposure_time,
	c.place_of_exposure, c.affected_area, c.type_of_exposure, c.animal_detail, c.animal_condition,
	c.risk_level, c.tetanus_prophylaxis_status, c.case_status, c.created_at`

func (r *caseRepoPG) scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var risk, status string
	err := row.Scan(&c.ID, &c.PatientID, &c.ClinicID, &c.ExposureDate, &c.ExposureTime,
		&c.PlaceOfExposure, &c.AffectedArea, &c.TypeOfExposure, &c.AnimalDetail, &c.AnimalCondition,
		&risk, &c.TetanusProphylaxisStatus, &status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.RiskLevel, err = triage.ParseCategory(risk); err != nil {
		return nil, fmt.Errorf("case %d: %w", c.ID, err)
	}
	if c.Status, err = ParseCaseStatus(status); err != nil {
		return nil, fmt.Errorf("case %d: %w", c.ID, err)
	}
	return &c, nil
}

func (r *caseRepoPG) collect(rows pgx.Rows, op string) ([]*Case, error) {
	defer rows.Close()
	var out []*Case
	for rows.Next() {
		c, err := r.scanCase(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cases (patient_id, clinic_id, exposure_date, exposure_time,
			place_of_exposure, affected_area, type_of_exposure, animal_detail, animal_condition,
			risk_level, tetanus_prophylaxis_status, case_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at`,
		c.PatientID, c.ClinicID, c.ExposureDate, c.ExposureTime,
		c.PlaceOfExposure, c.AffectedArea, c.TypeOfExposure, c.AnimalDetail, c.AnimalCondition,
		string(c.RiskLevel), c.TetanusProphylaxisStatus, string(c.Status)).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return storageErr("create case", err)
	}
	return nil
}

func (r *caseRepoPG) GetForClinic(ctx context.Context, id, clinicID int64) (*Case, error) {
	c, err := r.scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM cases c WHERE c.id = $1 AND c.clinic_id = $2`, id, clinicID))
	if err != nil {
		return nil, storageErr("get case", err)
	}
	return c, nil
}

func (r *caseRepoPG) SetStatus(ctx context.Context, id, clinicID int64, status CaseStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE cases SET case_status = $3 WHERE id = $1 AND clinic_id = $2`, id, clinicID, string(status))
	if err != nil {
		return storageErr("update case status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *caseRepoPG) ListByClinic(ctx context.Context, clinicID int64, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	where := ` WHERE c.clinic_id = $1`
	args := []interface{}{clinicID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(` AND c.case_status = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cases c`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count cases", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM cases c%s
		ORDER BY c.created_at DESC, c.id DESC LIMIT $%d OFFSET $%d`, caseCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, storageErr("list cases", err)
	}
	items, err := r.collect(rows, "list cases")
	return items, total, err
}

func (r *caseRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM cases c WHERE c.patient_id = $1 ORDER BY c.created_at DESC, c.id DESC`, patientID)
	if err != nil {
		return nil, storageErr("list patient cases", err)
	}
	return r.collect(rows, "list patient cases")
}

func (r *caseRepoPG) CountByStatus(ctx context.Context, clinicID int64) (map[CaseStatus]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT c.case_status, COUNT(*) FROM cases c WHERE c.clinic_id = $1 GROUP BY c.case_status`, clinicID)
	if err != nil {
		return nil, storageErr("count cases by status", err)
	}
	defer rows.Close()

	counts := make(map[CaseStatus]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, storageErr("scan status count", err)
		}
		status, err := ParseCaseStatus(raw)
		if err != nil {
			return nil, storageErr("count cases by status", err)
		}
		counts[status] += n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count cases by status", err)
	}
	return counts, nil
}

func (r *caseRepoPG) CreatePreScreening(ctx context.Context, p *PreScreening) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pre_screening_details (case_id, wound_description, bleeding_type, local_treatment,
			patient_prev_immunization, prev_vaccine_date, tetanus_date, hrtig_immunization, hrtig_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		p.CaseID, p.WoundDescription, p.BleedingType, p.LocalTreatment,
		p.PatientPrevImmunization, p.PrevVaccineDate, p.TetanusDate, p.HRIGImmunization, p.HRIGDate).Scan(&p.ID)
	if err != nil {
		return storageErr("create pre-screening", err)
	}
	return nil
}

func (r *caseRepoPG) GetPreScreening(ctx context.Context, caseID int64) (*PreScreening, error) {
	var p PreScreening
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, case_id, wound_description, COALESCE(bleeding_type, ''), local_treatment,
			patient_prev_immunization, prev_vaccine_date, tetanus_date, hrtig_immunization, hrtig_date
		FROM pre_screening_details WHERE case_id = $1`, caseID).
		Scan(&p.ID, &p.CaseID, &p.WoundDescription, &p.BleedingType, &p.LocalTreatment,
			&p.PatientPrevImmunization, &p.PrevVaccineDate, &p.TetanusDate, &p.HRIGImmunization, &p.HRIGDate)
	if err != nil {
		return nil, storageErr("get pre-screening", err)
	}
	return &p, nil
}

func (r *caseRepoPG) MarkNoShow(ctx context.Context, clinicID int64, cutoff time.Time) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE cases c SET case_status = $5
		WHERE c.clinic_id = $1
		  AND c.case_status = ANY($2)
		  AND EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.case_id = c.id
			  AND a.status = ANY($3)
			  AND a.appointment_datetime <= $4)
		RETURNING c.id`,
		clinicID, statusStrings(sweepCaseStatuses), statusStrings(sweepAppointmentStatuses), cutoff, string(CaseNoShow))
	if err != nil {
		return nil, storageErr("mark no-show cases", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storageErr("mark no-show cases", err)
	}
	return ids, nil
}

func (r *caseRepoPG) ArchiveNoShows(ctx context.Context, clinicID int64, cutoff time.Time) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE cases c SET case_status = $4
		WHERE c.clinic_id = $1
		  AND c.case_status = $2
		  AND EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.case_id = c.id AND a.appointment_datetime <= $3)
		RETURNING c.id`,
		clinicID, string(CaseNoShow), cutoff, string(CaseArchived))
	if err != nil {
		return nil, storageErr("archive no-show cases", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storageErr("archive no-show cases", err)
	}
	return ids, nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, a.clinic_id, a.case_id, a.appointment_datetime,
	a.status, COALESCE(a.type, ''), a.created_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.PatientID, &a.ClinicID, &a.CaseID, &a.ScheduledAt,
		&status, &a.Type, &a.CreatedAt); err != nil {
		return nil, err
	}
	st, err := ParseAppointmentStatus(status)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", a.ID, err)
	}
	a.Status = st
	return &a, nil
}

func (r *appointmentRepoPG) collect(rows pgx.Rows, op string) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (r *appointmentRepoPG) get(ctx context.Context, op, where string, args ...interface{}) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments a WHERE `+where, args...))
	if err != nil {
		return nil, storageErr(op, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, clinic_id, case_id, appointment_datetime, status, type)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		a.PatientID, a.ClinicID, a.CaseID, a.ScheduledAt, string(a.Status), a.Type).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return storageErr("create appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetForClinic(ctx context.Context, id, clinicID int64) (*Appointment, error) {
	return r.get(ctx, "get appointment", `a.id = $1 AND a.clinic_id = $2`, id, clinicID)
}

func (r *appointmentRepoPG) GetForPatient(ctx context.Context, id, patientID int64) (*Appointment, error) {
	return r.get(ctx, "get appointment", `a.id = $1 AND a.patient_id = $2`, id, patientID)
}

func (r *appointmentRepoPG) LatestForCase(ctx context.Context, caseID int64) (*Appointment, error) {
	return r.get(ctx, "get latest appointment",
		`a.case_id = $1 ORDER BY a.appointment_datetime DESC, a.id DESC LIMIT 1`, caseID)
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id int64, status AppointmentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return storageErr("update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) SetScheduledAt(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET appointment_datetime = $2 WHERE id = $1`, id, at)
	if err != nil {
		return storageErr("reschedule appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByCase(ctx context.Context, caseID int64) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.case_id = $1 ORDER BY a.appointment_datetime DESC, a.id DESC`, caseID)
	if err != nil {
		return nil, storageErr("list case appointments", err)
	}
	return r.collect(rows, "list case appointments")
}

func (r *appointmentRepoPG) ListByClinic(ctx context.Context, clinicID int64, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE a.clinic_id = $1`
	args := []interface{}{clinicID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(` AND a.status = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count appointments", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM appointments a%s
		ORDER BY a.appointment_datetime DESC, a.id DESC LIMIT $%d OFFSET $%d`, apptCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, storageErr("list appointments", err)
	}
	items, err := r.collect(rows, "list appointments")
	return items, total, err
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.patient_id = $1 ORDER BY a.appointment_datetime DESC, a.id DESC`, patientID)
	if err != nil {
		return nil, storageErr("list patient appointments", err)
	}
	return r.collect(rows, "list patient appointments")
}

func (r *appointmentRepoPG) MarkNoShowForCases(ctx context.Context, caseIDs []int64) (int, error) {
	if len(caseIDs) == 0 {
		return 0, nil
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments a SET status = $3
		WHERE a.case_id = ANY($1) AND a.status = ANY($2)`,
		caseIDs, statusStrings(sweepAppointmentStatuses), string(AppointmentNoShow))
	if err != nil {
		return 0, storageErr("mark no-show appointments", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *appointmentRepoPG) RemoveForCases(ctx context.Context, caseIDs []int64) (int, error) {
	if len(caseIDs) == 0 {
		return 0, nil
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2 WHERE case_id = ANY($1)`, caseIDs, string(AppointmentRemoved))
	if err != nil {
		return 0, storageErr("remove appointments", err)
	}
	return int(tag.RowsAffected()), nil
}

// =========== Note Repository ===========

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_notes (case_id, clinic_id, author_id, body) VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`, n.CaseID, n.ClinicID, n.AuthorID, n.Body).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return storageErr("create note", err)
	}
	return nil
}

func (r *noteRepoPG) ListByCase(ctx context.Context, caseID int64) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, clinic_id, author_id, body, created_at
		FROM case_notes WHERE case_id = $1 ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, storageErr("list notes", err)
	}
	defer rows.Close()
	var out []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.CaseID, &n.ClinicID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, storageErr("scan note", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list notes", err)
	}
	return out, nil
}

// =========== Dose Repository ===========

type doseRepoPG struct{ pool *pgxpool.Pool }

func NewDoseRepoPG(pool *pgxpool.Pool) DoseRepository { return &doseRepoPG{pool: pool} }

func (r *doseRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *doseRepoPG) Create(ctx context.Context, d *Dose) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vaccination_doses (case_id, clinic_id, dose_day, administered_at, vaccine_brand, administered_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		d.CaseID, d.ClinicID, d.Day, d.AdministeredOn, d.VaccineBrand, d.AdministeredBy).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return invalid("dose_day", fmt.Sprintf("Day %d dose is already recorded for this case.", d.Day))
		}
		return storageErr("record dose", err)
	}
	return nil
}

func (r *doseRepoPG) ListByCase(ctx context.Context, caseID int64) ([]*Dose, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, clinic_id, dose_day, administered_at, vaccine_brand, administered_by, created_at
		FROM vaccination_doses WHERE case_id = $1 ORDER BY dose_day`, caseID)
	if err != nil {
		return nil, storageErr("list doses", err)
	}
	defer rows.Close()
	var out []*Dose
	for rows.Next() {
		var d Dose
		if err := rows.Scan(&d.ID, &d.CaseID, &d.ClinicID, &d.Day, &d.AdministeredOn,
			&d.VaccineBrand, &d.AdministeredBy, &d.CreatedAt); err != nil {
			return nil, storageErr("scan dose", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list doses", err)
	}
	return out, nil
}

package casemgmt

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// memDB is an in-memory stand-in for the clinic schema. Reads return copies
// so that the service can only change state through repository calls.
type memDB struct {
	clinics    map[int64]Clinic
	patients   map[int64]Patient
	cases      map[int64]Case
	screenings map[int64]PreScreening
	appts      map[int64]Appointment
	notes      map[int64]Note
	doses      map[int64]Dose
	nextID     int64

	// fail makes the named repository method return an error.
	fail map[string]error
	txs  int
}

func newMemDB() *memDB {
	return &memDB{
		clinics:    make(map[int64]Clinic),
		patients:   make(map[int64]Patient),
		cases:      make(map[int64]Case),
		screenings: make(map[int64]PreScreening),
		appts:      make(map[int64]Appointment),
		notes:      make(map[int64]Note),
		doses:      make(map[int64]Dose),
		fail:       make(map[string]error),
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memDB) check(op string) error {
	if err, ok := m.fail[op]; ok {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memSnapshot struct {
	clinics    map[int64]Clinic
	patients   map[int64]Patient
	cases      map[int64]Case
	screenings map[int64]PreScreening
	appts      map[int64]Appointment
	notes      map[int64]Note
	doses      map[int64]Dose
	nextID     int64
}

func (m *memDB) snapshot() memSnapshot {
	return memSnapshot{
		clinics:    cloneMap(m.clinics),
		patients:   cloneMap(m.patients),
		cases:      cloneMap(m.cases),
		screenings: cloneMap(m.screenings),
		appts:      cloneMap(m.appts),
		notes:      cloneMap(m.notes),
		doses:      cloneMap(m.doses),
		nextID:     m.nextID,
	}
}

func (m *memDB) restore(s memSnapshot) {
	m.clinics, m.patients, m.cases = s.clinics, s.patients, s.cases
	m.screenings, m.appts, m.notes, m.doses = s.screenings, s.appts, s.notes, s.doses
	m.nextID = s.nextID
}

// InTx restores the pre-call state when fn fails.
func (m *memDB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txs++
	if err, ok := m.fail["begin"]; ok {
		return fmt.Errorf("begin transaction: %w", err)
	}
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memDB) repos() Repositories {
	return Repositories{
		Clinics:      &mockClinicRepo{m},
		Patients:     &mockPatientRepo{m},
		Cases:        &mockCaseRepo{m},
		Appointments: &mockAppointmentRepo{m},
		Notes:        &mockNoteRepo{m},
		Doses:        &mockDoseRepo{m},
	}
}

// -- seed helpers --

func (m *memDB) addClinic(name string) int64 {
	id := m.id()
	m.clinics[id] = Clinic{ID: id, Name: name}
	return id
}

func (m *memDB) addPatient() int64 {
	id := m.id()
	m.patients[id] = Patient{ID: id}
	return id
}

func (m *memDB) addCase(clinicID, patientID int64, status CaseStatus) int64 {
	id := m.id()
	m.cases[id] = Case{ID: id, ClinicID: clinicID, PatientID: patientID, Status: status,
		TypeOfExposure: "Bite", RiskLevel: "Category III"}
	return id
}

func (m *memDB) addAppt(caseID int64, status AppointmentStatus, at time.Time) int64 {
	c := m.cases[caseID]
	id := m.id()
	m.appts[id] = Appointment{ID: id, CaseID: caseID, ClinicID: c.ClinicID, PatientID: c.PatientID,
		Status: status, ScheduledAt: at, Type: appointmentTypePreScreening}
	return id
}

// -- Clinics --

type mockClinicRepo struct{ db *memDB }

func (r *mockClinicRepo) Create(_ context.Context, c *Clinic) error {
	if err := r.db.check("clinics.Create"); err != nil {
		return err
	}
	c.ID = r.db.id()
	r.db.clinics[c.ID] = *c
	return nil
}

func (r *mockClinicRepo) GetByID(_ context.Context, id int64) (*Clinic, error) {
	c, ok := r.db.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *mockClinicRepo) List(_ context.Context) ([]*Clinic, error) {
	var out []*Clinic
	for _, c := range r.db.clinics {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -- Patients --

type mockPatientRepo struct{ db *memDB }

func (r *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := r.db.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *mockPatientRepo) UpdateContact(_ context.Context, p *Patient) error {
	if err := r.db.check("patients.UpdateContact"); err != nil {
		return err
	}
	if _, ok := r.db.patients[p.ID]; !ok {
		return ErrNotFound
	}
	r.db.patients[p.ID] = *p
	return nil
}

func (r *mockPatientRepo) UpdateProfile(_ context.Context, p *Patient) error {
	if err := r.db.check("patients.UpdateProfile"); err != nil {
		return err
	}
	cur, ok := r.db.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.FirstName, cur.LastName, cur.DateOfBirth, cur.Gender = p.FirstName, p.LastName, p.DateOfBirth, p.Gender
	cur.Address, cur.PhoneNumber, cur.Email = p.Address, p.PhoneNumber, p.Email
	cur.Allergies, cur.PreExistingConditions, cur.CurrentMedications = p.Allergies, p.PreExistingConditions, p.CurrentMedications
	r.db.patients[p.ID] = cur
	return nil
}

// -- Cases --

type mockCaseRepo struct{ db *memDB }

func (r *mockCaseRepo) Create(_ context.Context, c *Case) error {
	if err := r.db.check("cases.Create"); err != nil {
		return err
	}
	c.ID = r.db.id()
	c.CreatedAt = time.Now()
	r.db.cases[c.ID] = *c
	return nil
}

func (r *mockCaseRepo) GetForClinic(_ context.Context, id, clinicID int64) (*Case, error) {
	c, ok := r.db.cases[id]
	if !ok || c.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *mockCaseRepo) SetStatus(_ context.Context, id, clinicID int64, status CaseStatus) error {
	if err := r.db.check("cases.SetStatus"); err != nil {
		return err
	}
	c, ok := r.db.cases[id]
	if !ok || c.ClinicID != clinicID {
		return ErrNotFound
	}
	c.Status = status
	r.db.cases[id] = c
	return nil
}

func (r *mockCaseRepo) sorted(keep func(Case) bool) []*Case {
	var out []*Case
	for _, c := range r.db.cases {
		if keep(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *mockCaseRepo) ListByClinic(_ context.Context, clinicID int64, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	all := r.sorted(func(c Case) bool {
		return c.ClinicID == clinicID && (f.Status == "" || c.Status == f.Status)
	})
	total := len(all)
	if offset >= total {
		return []*Case{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *mockCaseRepo) ListByPatient(_ context.Context, patientID int64) ([]*Case, error) {
	return r.sorted(func(c Case) bool { return c.PatientID == patientID }), nil
}

func (r *mockCaseRepo) CountByStatus(_ context.Context, clinicID int64) (map[CaseStatus]int, error) {
	if err := r.db.check("cases.CountByStatus"); err != nil {
		return nil, err
	}
	out := make(map[CaseStatus]int)
	for _, c := range r.db.cases {
		if c.ClinicID == clinicID {
			out[c.Status]++
		}
	}
	return out, nil
}

func (r *mockCaseRepo) CreatePreScreening(_ context.Context, p *PreScreening) error {
	if err := r.db.check("cases.CreatePreScreening"); err != nil {
		return err
	}
	p.ID = r.db.id()
	r.db.screenings[p.CaseID] = *p
	return nil
}

func (r *mockCaseRepo) GetPreScreening(_ context.Context, caseID int64) (*PreScreening, error) {
	p, ok := r.db.screenings[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *mockCaseRepo) hasAppt(caseID int64, match func(Appointment) bool) bool {
	for _, a := range r.db.appts {
		if a.CaseID == caseID && match(a) {
			return true
		}
	}
	return false
}

func (r *mockCaseRepo) MarkNoShow(_ context.Context, clinicID int64, cutoff time.Time) ([]int64, error) {
	if err := r.db.check("cases.MarkNoShow"); err != nil {
		return nil, err
	}
	var ids []int64
	for id, c := range r.db.cases {
		if c.ClinicID != clinicID || !caseStatusIn(c.Status, sweepCaseStatuses) {
			continue
		}
		due := r.hasAppt(id, func(a Appointment) bool {
			return appointmentStatusIn(a.Status, sweepAppointmentStatuses) && !a.ScheduledAt.After(cutoff)
		})
		if due {
			c.Status = CaseNoShow
			r.db.cases[id] = c
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *mockCaseRepo) ArchiveNoShows(_ context.Context, clinicID int64, cutoff time.Time) ([]int64, error) {
	if err := r.db.check("cases.ArchiveNoShows"); err != nil {
		return nil, err
	}
	var ids []int64
	for id, c := range r.db.cases {
		if c.ClinicID != clinicID || c.Status != CaseNoShow {
			continue
		}
		if r.hasAppt(id, func(a Appointment) bool { return !a.ScheduledAt.After(cutoff) }) {
			c.Status = CaseArchived
			r.db.cases[id] = c
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// -- Appointments --

type mockAppointmentRepo struct{ db *memDB }

func (r *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if err := r.db.check("appointments.Create"); err != nil {
		return err
	}
	a.ID = r.db.id()
	a.CreatedAt = time.Now()
	r.db.appts[a.ID] = *a
	return nil
}

func (r *mockAppointmentRepo) GetForClinic(_ context.Context, id, clinicID int64) (*Appointment, error) {
	a, ok := r.db.appts[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *mockAppointmentRepo) GetForPatient(_ context.Context, id, patientID int64) (*Appointment, error) {
	a, ok := r.db.appts[id]
	if !ok || a.PatientID != patientID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *mockAppointmentRepo) SetStatus(_ context.Context, id int64, status AppointmentStatus) error {
	if err := r.db.check("appointments.SetStatus"); err != nil {
		return err
	}
	a, ok := r.db.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	r.db.appts[id] = a
	return nil
}

func (r *mockAppointmentRepo) SetScheduledAt(_ context.Context, id int64, at time.Time) error {
	a, ok := r.db.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ScheduledAt = at
	r.db.appts[id] = a
	return nil
}

func (r *mockAppointmentRepo) sorted(keep func(Appointment) bool) []*Appointment {
	var out []*Appointment
	for _, a := range r.db.appts {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *mockAppointmentRepo) LatestForCase(_ context.Context, caseID int64) (*Appointment, error) {
	all := r.sorted(func(a Appointment) bool { return a.CaseID == caseID })
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func (r *mockAppointmentRepo) ListByCase(_ context.Context, caseID int64) ([]*Appointment, error) {
	return r.sorted(func(a Appointment) bool { return a.CaseID == caseID }), nil
}

func (r *mockAppointmentRepo) ListByClinic(_ context.Context, clinicID int64, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	all := r.sorted(func(a Appointment) bool {
		return a.ClinicID == clinicID && (f.Status == "" || a.Status == f.Status)
	})
	total := len(all)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *mockAppointmentRepo) ListByPatient(_ context.Context, patientID int64) ([]*Appointment, error) {
	return r.sorted(func(a Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *mockAppointmentRepo) forCases(caseIDs []int64, fn func(a *Appointment) bool) int {
	in := make(map[int64]bool, len(caseIDs))
	for _, id := range caseIDs {
		in[id] = true
	}
	n := 0
	for id, a := range r.db.appts {
		if in[a.CaseID] && fn(&a) {
			r.db.appts[id] = a
			n++
		}
	}
	return n
}

func (r *mockAppointmentRepo) MarkNoShowForCases(_ context.Context, caseIDs []int64) (int, error) {
	if err := r.db.check("appointments.MarkNoShowForCases"); err != nil {
		return 0, err
	}
	return r.forCases(caseIDs, func(a *Appointment) bool {
		if !appointmentStatusIn(a.Status, sweepAppointmentStatuses) {
			return false
		}
		a.Status = AppointmentNoShow
		return true
	}), nil
}

func (r *mockAppointmentRepo) RemoveForCases(_ context.Context, caseIDs []int64) (int, error) {
	if err := r.db.check("appointments.RemoveForCases"); err != nil {
		return 0, err
	}
	return r.forCases(caseIDs, func(a *Appointment) bool {
		a.Status = AppointmentRemoved
		return true
	}), nil
}

// -- Notes & doses --

type mockNoteRepo struct{ db *memDB }

func (r *mockNoteRepo) Create(_ context.Context, n *Note) error {
	n.ID = r.db.id()
	n.CreatedAt = time.Now()
	r.db.notes[n.ID] = *n
	return nil
}

func (r *mockNoteRepo) ListByCase(_ context.Context, caseID int64) ([]*Note, error) {
	var out []*Note
	for _, n := range r.db.notes {
		if n.CaseID == caseID {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockDoseRepo struct{ db *memDB }

func (r *mockDoseRepo) Create(_ context.Context, d *Dose) error {
	for _, existing := range r.db.doses {
		if existing.CaseID == d.CaseID && existing.Day == d.Day {
			return invalid("dose_day", fmt.Sprintf("Day %d dose is already recorded for this case.", d.Day))
		}
	}
	d.ID = r.db.id()
	d.CreatedAt = time.Now()
	r.db.doses[d.ID] = *d
	return nil
}

func (r *mockDoseRepo) ListByCase(_ context.Context, caseID int64) ([]*Dose, error) {
	var out []*Dose
	for _, d := range r.db.doses {
		if d.CaseID == caseID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

package auth

// Role is the caller's account type.
type Role string

const (
	RolePatient         Role = "patient"
	RoleClinicPersonnel Role = "clinic_personnel"
	RoleSystemAdmin     Role = "system_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleClinicPersonnel, RoleSystemAdmin:
		return true
	}
	return false
}

// Actor is the explicit identity handed to the service layer. ClinicID is
// set for staff, PatientID for patients.
type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	ClinicID  int64  `json:"clinic_id,omitempty"`
	PatientID int64  `json:"patient_id,omitempty"`
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleClinicPersonnel || a.Role == RoleSystemAdmin
}

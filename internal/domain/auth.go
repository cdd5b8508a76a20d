package domain

// Role tags the kind of account a credential belongs to.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// Roles lists every role in a fixed order.
var Roles = []Role{RolePatient, RoleDoctor, RoleAdmin}

// Valid reports whether r is one of the closed set of roles. Matching is case-sensitive.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Capability names a permission required by a specific operation.
type Capability string

const (
	CapAssignDoctor      Capability = "assign-doctor"
	CapRegisterAdmin     Capability = "register-admin"
	CapSetOwnProfile     Capability = "set-own-profile"
	CapEditPrescription  Capability = "edit-prescription"
	CapViewOwnPatients   Capability = "view-own-patients"
	CapViewOwnProfile    Capability = "view-own-profile"
	CapViewOwnReports    Capability = "view-own-reports"
	CapPlaceOrder        Capability = "place-order"
	CapChangeOwnPassword Capability = "change-own-password"
)

// Identity is the subject a validated session token speaks for.
type Identity struct {
	SubjectID int64
	Role      Role
}

package auth

import "github.com/spec-kit/clinic-service/internal/domain"

// capabilityTable maps each role to the operations it may perform. A role missing from the
// table, or a capability missing from its set, is denied.
var capabilityTable = map[domain.Role]map[domain.Capability]struct{}{
	domain.RoleAdmin: capabilitySet(
		domain.CapAssignDoctor,
		domain.CapRegisterAdmin,
		domain.CapChangeOwnPassword,
	),
	domain.RoleDoctor: capabilitySet(
		domain.CapSetOwnProfile,
		domain.CapEditPrescription,
		domain.CapViewOwnPatients,
		domain.CapChangeOwnPassword,
	),
	domain.RolePatient: capabilitySet(
		domain.CapViewOwnProfile,
		domain.CapViewOwnReports,
		domain.CapPlaceOrder,
		domain.CapChangeOwnPassword,
	),
}

func capabilitySet(caps ...domain.Capability) map[domain.Capability]struct{} {
	set := make(map[domain.Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

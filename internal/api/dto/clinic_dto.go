package dto

import "time"

// AssignDoctorRequest links a patient to a doctor.
type AssignDoctorRequest struct {
	PatientID int64 `json:"patient_id"`
	DoctorID  int64 `json:"doctor_id"`
}

// AssignmentResponse echoes a stored assignment.
type AssignmentResponse struct {
	PatientID  int64     `json:"patient_id"`
	DoctorID   int64     `json:"doctor_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

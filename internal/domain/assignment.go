package domain

import "time"

// Assignment links a patient to their doctor. A patient has at most one doctor.
type Assignment struct {
	PatientID  int64
	DoctorID   int64
	AssignedAt time.Time
}

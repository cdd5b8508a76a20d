package events

import (
	"time"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered      EventType = "account_registered"
	EventLoginSucceeded         EventType = "login_succeeded"
	EventLoginFailed            EventType = "login_failed"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordReset          EventType = "password_reset"
	EventPasswordChanged        EventType = "password_changed"
	EventDoctorAssigned         EventType = "doctor_assigned"
)

// Event represents an auth or clinic event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Subject   domain.Identity `json:"subject"`
	Email     string          `json:"email,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// DoctorAssignedPayload payload.
type DoctorAssignedPayload struct {
	PatientID int64 `json:"patient_id"`
	DoctorID  int64 `json:"doctor_id"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Role   domain.Role `json:"role"`
	Reason string      `json:"reason"`
}

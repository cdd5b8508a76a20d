package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/domain"
	"github.com/spec-kit/clinic-service/internal/events"
	"github.com/spec-kit/clinic-service/internal/repository"
	apperrors "github.com/spec-kit/clinic-service/pkg/util/errorutil"
)

// ClinicService covers the role-scoped clinic operations: doctor assignment and
// the callers' own records.
type ClinicService struct {
	accounts    repository.AccountRepository
	assignments repository.AssignmentRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// ClinicDependencies bundles repositories.
type ClinicDependencies struct {
	Accounts    repository.AccountRepository
	Assignments repository.AssignmentRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewClinicService creates the service.
func NewClinicService(deps ClinicDependencies) *ClinicService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClinicService{
		accounts:    deps.Accounts,
		assignments: deps.Assignments,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// AssignDoctor links a patient to a doctor. A patient has at most one doctor.
func (s *ClinicService) AssignDoctor(ctx context.Context, actor domain.Identity, patientID, doctorID int64) (*domain.Assignment, error) {
	if err := requireCapability(actor, domain.CapAssignDoctor); err != nil {
		return nil, err
	}
	if patientID <= 0 || doctorID <= 0 {
		return nil, apperrors.NewValidationError("patient_id and doctor_id must be positive", nil)
	}

	if err := s.mustExist(ctx, domain.RolePatient, patientID); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, domain.RoleDoctor, doctorID); err != nil {
		return nil, err
	}

	assignment, err := s.assignments.Assign(ctx, patientID, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("patient already has a doctor", map[string]any{"patient_id": patientID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:    events.EventDoctorAssigned,
		Subject: actor,
		Payload: events.DoctorAssignedPayload{PatientID: patientID, DoctorID: doctorID},
	})
	return assignment, nil
}

// ListOwnPatients returns the patients assigned to the calling doctor.
func (s *ClinicService) ListOwnPatients(ctx context.Context, actor domain.Identity) ([]domain.Account, error) {
	if err := requireCapability(actor, domain.CapViewOwnPatients); err != nil {
		return nil, err
	}
	patients, err := s.assignments.ListPatients(ctx, actor.SubjectID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return patients, nil
}

// OwnProfile returns the calling patient's account.
func (s *ClinicService) OwnProfile(ctx context.Context, actor domain.Identity) (*domain.Account, error) {
	if err := requireCapability(actor, domain.CapViewOwnProfile); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, actor.Role, actor.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("profile", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return account, nil
}

func (s *ClinicService) mustExist(ctx context.Context, role domain.Role, id int64) error {
	exists, err := s.accounts.SubjectExists(ctx, domain.Identity{SubjectID: id, Role: role})
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !exists {
		resource := "patient"
		key := "patient_id"
		if role == domain.RoleDoctor {
			resource, key = "doctor", "doctor_id"
		}
		return apperrors.NewNotFound(resource, map[string]any{key: id})
	}
	return nil
}

func requireCapability(actor domain.Identity, capability domain.Capability) error {
	if !auth.Authorize(actor.Role, capability) {
		return auth.ErrForbidden
	}
	return nil
}

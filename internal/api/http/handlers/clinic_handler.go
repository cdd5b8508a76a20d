package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clinic-service/internal/api/dto"
	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/service"
)

// ClinicHandler serves the admin, doctor and patient endpoints.
type ClinicHandler struct {
	clinic *service.ClinicService
	auth   *service.AuthService
}

// NewClinicHandler constructs handler.
func NewClinicHandler(clinicService *service.ClinicService, authService *service.AuthService) *ClinicHandler {
	return &ClinicHandler{clinic: clinicService, auth: authService}
}

// RegisterAdmin handles POST /admin/admins.
func (h *ClinicHandler) RegisterAdmin(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return auth.ErrUnauthenticated
	}
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	account, err := h.auth.RegisterAdmin(c.UserContext(), principal.Identity, req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// AssignDoctor handles POST /admin/assignments.
func (h *ClinicHandler) AssignDoctor(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return auth.ErrUnauthenticated
	}
	var req dto.AssignDoctorRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.clinic.AssignDoctor(c.UserContext(), principal.Identity, req.PatientID, req.DoctorID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AssignmentResponse{
		PatientID:  assignment.PatientID,
		DoctorID:   assignment.DoctorID,
		AssignedAt: assignment.AssignedAt,
	}})
}

// ListOwnPatients handles GET /doctors/me/patients.
func (h *ClinicHandler) ListOwnPatients(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return auth.ErrUnauthenticated
	}
	patients, err := h.clinic.ListOwnPatients(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}

	out := make([]dto.AccountResponse, 0, len(patients))
	for i := range patients {
		out = append(out, dto.NewAccountResponse(&patients[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// OwnProfile handles GET /patients/me.
func (h *ClinicHandler) OwnProfile(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return auth.ErrUnauthenticated
	}
	account, err := h.clinic.OwnProfile(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

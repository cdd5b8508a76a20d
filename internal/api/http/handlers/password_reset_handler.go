package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clinic-service/internal/api/dto"
	"github.com/spec-kit/clinic-service/internal/service"
)

// requestOtpMessage is returned whether or not the email has an account.
const requestOtpMessage = "If the email is registered, a one-time code has been sent."

// PasswordResetHandler exposes the passcode based reset flow.
type PasswordResetHandler struct {
	auth *service.AuthService
}

// NewPasswordResetHandler constructs handler.
func NewPasswordResetHandler(authService *service.AuthService) *PasswordResetHandler {
	return &PasswordResetHandler{auth: authService}
}

// RequestOtp handles POST /auth/password-reset/request-otp.
func (h *PasswordResetHandler) RequestOtp(c *fiber.Ctx) error {
	var req dto.OtpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.MessageResponse{Message: requestOtpMessage}})
}

// VerifyOtp handles POST /auth/password-reset/verify-otp.
func (h *PasswordResetHandler) VerifyOtp(c *fiber.Ctx) error {
	var req dto.OtpVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.auth.VerifyPasswordResetOtp(c.UserContext(), req.Email, req.Otp); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "code verified"}})
}

// Reset handles POST /auth/password-reset/reset.
func (h *PasswordResetHandler) Reset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "new_password required")
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.Email, req.Otp, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "password reset successful"}})
}

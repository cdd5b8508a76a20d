package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clinic-service/internal/api/dto"
	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/domain"
	"github.com/spec-kit/clinic-service/internal/service"
)

// AuthHandler exposes registration, login and password change.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register returns the handler for POST /auth/{patients|doctors}/register.
func (h *AuthHandler) Register(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}

		session, err := h.auth.Register(c.UserContext(), service.RegisterInput{
			Role:     role,
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(sessionResponse(session))
	}
}

// Login returns the handler for POST /auth/{patients|doctors|admins}/login.
func (h *AuthHandler) Login(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
		if req.Email == "" || req.Password == "" {
			return fiber.NewError(http.StatusBadRequest, "email and password required")
		}

		session, err := h.auth.Login(c.UserContext(), role, req.Email, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse(session))
	}
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return auth.ErrUnauthenticated
	}

	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "current_password and new_password required")
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal.Identity, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "password updated"}})
}

func sessionResponse(session *service.Session) fiber.Map {
	return fiber.Map{
		"data": fiber.Map{
			"account": dto.NewAccountResponse(session.Account),
			"auth": dto.AuthResponse{
				Token:     session.Token,
				TokenType: "Bearer",
				ExpiresAt: session.ExpiresAt,
			},
		},
	}
}

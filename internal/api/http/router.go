package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clinic-service/internal/api/http/handlers"
	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	PasswordReset  *handlers.PasswordResetHandler
	Clinic         *handlers.ClinicHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	mw := cfg.AuthMiddleware

	authGroup := app.Group("/auth")
	authGroup.Post("/patients/register", cfg.Auth.Register(domain.RolePatient))
	authGroup.Post("/doctors/register", cfg.Auth.Register(domain.RoleDoctor))
	authGroup.Post("/patients/login", cfg.Auth.Login(domain.RolePatient))
	authGroup.Post("/doctors/login", cfg.Auth.Login(domain.RoleDoctor))
	authGroup.Post("/admins/login", cfg.Auth.Login(domain.RoleAdmin))

	reset := authGroup.Group("/password-reset")
	reset.Post("/request-otp", cfg.PasswordReset.RequestOtp)
	reset.Post("/verify-otp", cfg.PasswordReset.VerifyOtp)
	reset.Post("/reset", cfg.PasswordReset.Reset)

	authGroup.Post("/password/change", mw.Handle, mw.RequireCapability(domain.CapChangeOwnPassword), cfg.Auth.ChangePassword)

	admin := app.Group("/admin", mw.Handle)
	admin.Post("/admins", mw.RequireCapability(domain.CapRegisterAdmin), cfg.Clinic.RegisterAdmin)
	admin.Post("/assignments", mw.RequireCapability(domain.CapAssignDoctor), cfg.Clinic.AssignDoctor)

	doctors := app.Group("/doctors", mw.Handle)
	doctors.Get("/me/patients", mw.RequireCapability(domain.CapViewOwnPatients), cfg.Clinic.ListOwnPatients)

	patients := app.Group("/patients", mw.Handle)
	patients.Get("/me", mw.RequireCapability(domain.CapViewOwnProfile), cfg.Clinic.OwnProfile)
}

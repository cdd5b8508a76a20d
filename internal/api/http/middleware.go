package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/auth"
	"github.com/spec-kit/clinic-service/internal/observability"
	"github.com/spec-kit/clinic-service/internal/otp"
	apperrors "github.com/spec-kit/clinic-service/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares. The request logger sits outermost so it
// observes the status written by the error middleware.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := Classify(err)
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// Classify maps an error returned by a handler to the response it produces.
func Classify(err error) *apperrors.DomainError {
	var fe *fiber.Error
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return apperrors.Wrap(err, "TOKEN_EXPIRED", "token expired", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken):
		return apperrors.Wrap(err, "INVALID_TOKEN", "invalid token", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUnauthenticated):
		return apperrors.Wrap(err, "UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		return apperrors.ToDomainError(apperrors.NewForbidden(err, "insufficient permissions"))
	case errors.Is(err, otp.ErrOtpMismatch):
		return apperrors.Wrap(err, "INVALID_OTP", otp.ErrOtpMismatch.Error(), http.StatusBadRequest)
	case errors.Is(err, otp.ErrCooldown):
		return apperrors.ToDomainError(apperrors.NewTooManyRequests(err, "OTP_COOLDOWN", "a code was sent recently; try again later"))
	case errors.Is(err, otp.ErrDelivery):
		return apperrors.ToDomainError(apperrors.NewBadGateway(err, "OTP_DELIVERY_FAILED", "could not deliver the code"))
	case errors.As(err, &fe):
		return apperrors.Wrap(err, fiberCode(fe.Code), fe.Message, fe.Code)
	}
	return apperrors.ToDomainError(err)
}

func fiberCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}

package auth

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/clinic-service/internal/domain"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Identity domain.Identity
}

// SubjectChecker confirms that a token's subject still exists.
type SubjectChecker interface {
	SubjectExists(ctx context.Context, id domain.Identity) (bool, error)
}

// AuthMiddleware validates bearer tokens and stores the principal for handlers.
type AuthMiddleware struct {
	access   *AccessDecision
	subjects SubjectChecker
}

// NewAuthMiddleware constructs middleware. subjects may be nil to trust the token alone.
func NewAuthMiddleware(access *AccessDecision, subjects SubjectChecker) *AuthMiddleware {
	return &AuthMiddleware{access: access, subjects: subjects}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	id, err := m.access.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}

	if m.subjects != nil {
		exists, err := m.subjects.SubjectExists(c.UserContext(), id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: subject no longer exists", ErrUnauthenticated)
		}
	}

	c.Locals(principalKey, &Principal{Identity: id})
	return c.Next()
}

// RequireCapability rejects callers whose role lacks capability. It must run after Handle.
func (m *AuthMiddleware) RequireCapability(capability domain.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return ErrUnauthenticated
		}
		if err := m.access.Require(principal.Identity, capability); err != nil {
			return err
		}
		return c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

package auth

import (
	"fmt"
	"strings"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// TokenValidator decodes a bearer token into the identity it asserts.
type TokenValidator interface {
	Validate(token string) (domain.Identity, error)
}

// AccessDecision derives the caller identity from the Authorization header and checks
// role capabilities.
type AccessDecision struct {
	tokens TokenValidator
}

// NewAccessDecision constructs an AccessDecision over the validator.
func NewAccessDecision(tokens TokenValidator) *AccessDecision {
	return &AccessDecision{tokens: tokens}
}

// Authenticate parses a "Bearer <token>" header. Every failure wraps ErrUnauthenticated;
// token failures additionally wrap ErrInvalidToken or ErrExpiredToken.
func (a *AccessDecision) Authenticate(header string) (domain.Identity, error) {
	if strings.TrimSpace(header) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return domain.Identity{}, fmt.Errorf("%w: invalid authorization header", ErrUnauthenticated)
	}

	id, err := a.tokens.Validate(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, nil
}

// Authorize reports whether role holds capability.
func (a *AccessDecision) Authorize(role domain.Role, capability domain.Capability) bool {
	return Authorize(role, capability)
}

// Require returns ErrForbidden unless the identity's role holds capability.
func (a *AccessDecision) Require(id domain.Identity, capability domain.Capability) error {
	if !Authorize(id.Role, capability) {
		return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, id.Role, capability)
	}
	return nil
}

// Authorize consults the static capability table.
func Authorize(role domain.Role, capability domain.Capability) bool {
	set, ok := capabilityTable[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

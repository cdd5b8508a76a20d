package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// TokenTTL is the fixed lifetime of every session token.
const TokenTTL = time.Hour

// MinSecretBytes is the shortest signing key accepted for HS256.
const MinSecretBytes = 32

// TokenIssuer mints and validates HS256 session tokens. It holds no state besides the
// signing key and is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// IssuerOption customizes a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) IssuerOption {
	return func(ti *TokenIssuer) {
		if now != nil {
			ti.now = now
		}
	}
}

// NewTokenIssuer builds an issuer for the given key.
func NewTokenIssuer(secret []byte, opts ...IssuerOption) (*TokenIssuer, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinSecretBytes, len(secret))
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	ti := &TokenIssuer{secret: key, now: time.Now}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// Claims describes the token payload.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the subject. The expiry is exactly TokenTTL after issuance.
func (ti *TokenIssuer) Issue(subjectID int64, role domain.Role) (string, time.Time, error) {
	if subjectID <= 0 {
		return "", time.Time{}, fmt.Errorf("subject id must be positive, got %d", subjectID)
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}

	// NumericDate has second precision; truncating keeps exp-iat at exactly TokenTTL.
	issuedAt := ti.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenTTL)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Validate checks the signature and expiry and returns the identity the token asserts.
// It does not check that the subject still exists.
func (ti *TokenIssuer) Validate(tokenStr string) (domain.Identity, error) {
	claims, err := ti.Parse(tokenStr)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{SubjectID: claims.subjectID(), Role: claims.Role}, nil
}

// Parse validates the token and returns its full claims.
func (ti *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() || claims.subjectID() <= 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if !claims.ExpiresAt.Time.Equal(claims.IssuedAt.Time.Add(TokenTTL)) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) subjectID() int64 {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

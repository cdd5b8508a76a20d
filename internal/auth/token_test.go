package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/clinic-service/internal/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestIssuer(t *testing.T, clock *fakeClock) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer(testSecret, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return ti
}

func TestNewTokenIssuerRejectsShortKey(t *testing.T) {
	for _, key := range [][]byte{nil, []byte(""), []byte("too-short-secret")} {
		if _, err := NewTokenIssuer(key); err == nil {
			t.Errorf("NewTokenIssuer(%q) succeeded, want error", key)
		}
	}
}

func TestIssueValidateRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	ti := newTestIssuer(t, clock)

	for _, role := range domain.Roles {
		token, exp, err := ti.Issue(42, role)
		if err != nil {
			t.Fatalf("Issue(%s): %v", role, err)
		}
		if want := clock.t.Add(TokenTTL); !exp.Equal(want) {
			t.Errorf("expiresAt = %v, want %v", exp, want)
		}
		id, err := ti.Validate(token)
		if err != nil {
			t.Fatalf("Validate(%s): %v", role, err)
		}
		if id.SubjectID != 42 || id.Role != role {
			t.Errorf("identity = %+v, want {42 %s}", id, role)
		}
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	ti := newTestIssuer(t, &fakeClock{t: time.Now()})
	if _, _, err := ti.Issue(0, domain.RolePatient); err == nil {
		t.Error("expected error for zero subject id")
	}
	if _, _, err := ti.Issue(7, domain.Role("patient")); err == nil {
		t.Error("expected error for lowercase role")
	}
}

func TestIssueVariesPerCall(t *testing.T) {
	ti := newTestIssuer(t, &fakeClock{t: time.Now()})
	a, _, _ := ti.Issue(1, domain.RoleDoctor)
	b, _, _ := ti.Issue(1, domain.RoleDoctor)
	if a == b {
		t.Error("two issued tokens are identical")
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issued.Add(250 * time.Millisecond)}
	ti := newTestIssuer(t, clock)

	token, exp, err := ti.Issue(42, domain.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(issued.Add(time.Hour)) {
		t.Fatalf("expiresAt = %v, want %v", exp, issued.Add(time.Hour))
	}

	valid := []time.Duration{0, 30 * time.Minute, time.Hour - time.Second, time.Hour - time.Nanosecond}
	for _, d := range valid {
		clock.t = issued.Add(d)
		if _, err := ti.Validate(token); err != nil {
			t.Errorf("at issuedAt+%v: unexpected error %v", d, err)
		}
	}

	expired := []time.Duration{time.Hour, time.Hour + time.Nanosecond, 2 * time.Hour}
	for _, d := range expired {
		clock.t = issued.Add(d)
		if _, err := ti.Validate(token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("at issuedAt+%v: err = %v, want ErrExpiredToken", d, err)
		}
	}
}

func flip(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}

func TestValidateDetectsTampering(t *testing.T) {
	ti := newTestIssuer(t, &fakeClock{t: time.Now()})
	token, _, err := ti.Issue(42, domain.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			continue
		}
		b := []byte(token)
		b[i] = flip(b[i])
		id, err := ti.Validate(string(b))
		if err == nil {
			t.Fatalf("tampered byte %d validated as %+v", i, id)
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("tampered byte %d: err = %v, want ErrInvalidToken", i, err)
		}
	}
}

func TestValidateRejectsNonCanonicalSignature(t *testing.T) {
	ti := newTestIssuer(t, &fakeClock{t: time.Now()})
	token, _, err := ti.Issue(42, domain.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A 32 byte HMAC encodes to 43 characters whose final one carries two padding bits.
	// Setting them yields the same bytes under lenient decoding.
	last := strings.IndexByte(base64URLAlphabet, token[len(token)-1])
	if last < 0 || last&3 != 0 {
		t.Fatalf("unexpected final character %q", token[len(token)-1])
	}
	forged := token[:len(token)-1] + string(base64URLAlphabet[last|1])
	if _, err := ti.Validate(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestValidateRejectsForgedClaims(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	ti := newTestIssuer(t, &fakeClock{t: now})

	sign := func(key []byte, method jwt.SigningMethod, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := func() *Claims {
		return &Claims{
			Role: domain.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "9",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			},
		}
	}

	otherKey := []byte("ffffffffffffffffffffffffffffffff")
	unknownRole := base()
	unknownRole.Role = "SUPERUSER"
	badSubject := base()
	badSubject.Subject = "nine"
	longLived := base()
	longLived.ExpiresAt = jwt.NewNumericDate(now.Add(24 * time.Hour))
	noExpiry := base()
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"wrong key":       sign(otherKey, jwt.SigningMethodHS256, base()),
		"wrong algorithm": sign(testSecret, jwt.SigningMethodHS512, base()),
		"unknown role":    sign(testSecret, jwt.SigningMethodHS256, unknownRole),
		"bad subject":     sign(testSecret, jwt.SigningMethodHS256, badSubject),
		"ttl mismatch":    sign(testSecret, jwt.SigningMethodHS256, longLived),
		"no expiry":       sign(testSecret, jwt.SigningMethodHS256, noExpiry),
		"garbage":         "not-a-token",
		"empty":           "",
	}
	for name, token := range cases {
		if _, err := ti.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}

	if _, err := ti.Validate(sign(testSecret, jwt.SigningMethodHS256, base())); err != nil {
		t.Errorf("control token rejected: %v", err)
	}
}

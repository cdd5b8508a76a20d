// Package otp implements the one-time passcode challenge that authorizes a password reset.
//
// At most one challenge is pending per email. Issuing a new one replaces the previous code.
// A code that matched stays valid until Clear is called or its TTL elapses, so callers must
// Clear after the privileged action succeeds.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// Defaults applied when Options leaves a field zero. A zero Cooldown disables it.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
)

var (
	// ErrOtpMismatch is the caller-facing failure for a wrong, expired or absent code.
	ErrOtpMismatch = errors.New("invalid or expired code")
	// ErrCooldown is returned when a code was issued for the email too recently.
	ErrCooldown = errors.New("passcode requested too recently")
	// ErrDelivery wraps a sender failure. The challenge was stored regardless.
	ErrDelivery = errors.New("passcode delivery failed")
	// ErrEmptyEmail is returned for a blank email key.
	ErrEmptyEmail = errors.New("email required")
)

// Store is the passcode protocol consumed by the password reset flow.
type Store interface {
	Generate(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) (bool, error)
	Clear(ctx context.Context, email string) error
}

// Sender delivers a message to an address out of band.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Backend holds the email to challenge mapping. Each call must be atomic per email.
type Backend interface {
	// Save stores c, replacing any pending challenge for c.Email, unless one was saved
	// less than cooldown before c.CreatedAt, in which case it returns ErrCooldown.
	Save(ctx context.Context, c domain.OtpChallenge, ttl, cooldown time.Duration) error
	// Check compares code with the pending challenge. A mismatch counts an attempt and
	// the challenge is dropped once maxAttempts is reached or it has expired.
	Check(ctx context.Context, email, code string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error)
	// Delete removes the challenge and any cooldown marker.
	Delete(ctx context.Context, email string) error
}

// Options tunes a Challenges store.
type Options struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// Challenges is the Store implementation over a Backend and a Sender.
type Challenges struct {
	backend     Backend
	sender      Sender
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int
	now         func() time.Time
}

var _ Store = (*Challenges)(nil)

// NewChallenges builds a store.
func NewChallenges(backend Backend, sender Sender, opts Options) *Challenges {
	c := &Challenges{
		backend:     backend,
		sender:      sender,
		ttl:         opts.TTL,
		cooldown:    opts.Cooldown,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.cooldown < 0 {
		c.cooldown = 0
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Generate issues a fresh code for email and sends it. On a send failure the code is
// still returned together with an error wrapping ErrDelivery.
func (c *Challenges) Generate(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", ErrEmptyEmail
	}

	code, err := NewCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	challenge := domain.OtpChallenge{Email: email, Code: code, CreatedAt: c.now()}
	if err := c.backend.Save(ctx, challenge, c.ttl, c.cooldown); err != nil {
		return "", err
	}

	subject, body := Message(code, c.ttl)
	if err := c.sender.Send(ctx, email, subject, body); err != nil {
		return code, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return code, nil
}

// Verify reports whether code matches the pending challenge for email. Absence, expiry
// and mismatch all yield false. The error is reserved for backend failures. A code that
// is not six digits never reaches the backend and so costs no attempt.
func (c *Challenges) Verify(ctx context.Context, email, code string) (bool, error) {
	if email == "" || !IsCode(code) {
		return false, nil
	}
	return c.backend.Check(ctx, email, code, c.now(), c.ttl, c.maxAttempts)
}

// Clear drops the challenge for email.
func (c *Challenges) Clear(ctx context.Context, email string) error {
	return c.backend.Delete(ctx, email)
}

// Pruner is implemented by backends without native key expiry.
type Pruner interface {
	Prune(now time.Time, ttl time.Duration) int
}

// Sweep removes expired challenges when the backend needs it and reports how many went.
func (c *Challenges) Sweep() int {
	p, ok := c.backend.(Pruner)
	if !ok {
		return 0
	}
	return p.Prune(c.now(), c.ttl)
}

// TTL returns how long a code stays valid.
func (c *Challenges) TTL() time.Duration {
	return c.ttl
}

// Message renders the subject and body delivered with a code.
func Message(code string, ttl time.Duration) (string, string) {
	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return "Your Password Reset OTP",
		fmt.Sprintf("Your OTP for password reset is: %s. It is valid for %d %s.", code, minutes, unit)
}

func codesEqual(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

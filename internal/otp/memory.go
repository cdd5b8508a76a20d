package otp

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// MemoryBackend keeps challenges in a process-local map guarded by one mutex. Expired
// records are removed lazily.
//
// Cooldown windows live in their own map: a challenge consumed by failed attempts or
// expiry does not reopen issuance early. Only Delete clears a window before it ends.
type MemoryBackend struct {
	mu            sync.Mutex
	challenges    map[string]domain.OtpChallenge
	cooldownUntil map[string]time.Time
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		challenges:    make(map[string]domain.OtpChallenge),
		cooldownUntil: make(map[string]time.Time),
	}
}

func (m *MemoryBackend) Save(_ context.Context, c domain.OtpChallenge, ttl, cooldown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.cooldownUntil[c.Email]; ok && c.CreatedAt.Before(until) {
		return ErrCooldown
	}

	m.pruneLocked(c.CreatedAt, ttl)

	c.Attempts = 0
	m.challenges[c.Email] = c
	if cooldown > 0 {
		m.cooldownUntil[c.Email] = c.CreatedAt.Add(cooldown)
	}
	return nil
}

func (m *MemoryBackend) Check(_ context.Context, email, code string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[email]
	if !ok {
		return false, nil
	}
	if c.ExpiredAt(now, ttl) {
		delete(m.challenges, email)
		return false, nil
	}
	if codesEqual(c.Code, code) {
		return true, nil
	}

	c.Attempts++
	if c.Attempts >= maxAttempts {
		delete(m.challenges, email)
		return false, nil
	}
	m.challenges[email] = c
	return false, nil
}

func (m *MemoryBackend) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, email)
	delete(m.cooldownUntil, email)
	return nil
}

// Prune drops every challenge expired at now and returns how many were removed. Elapsed
// cooldown windows are dropped too but not counted.
func (m *MemoryBackend) Prune(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(now, ttl)
}

func (m *MemoryBackend) pruneLocked(now time.Time, ttl time.Duration) int {
	removed := 0
	for email, c := range m.challenges {
		if c.ExpiredAt(now, ttl) {
			delete(m.challenges, email)
			removed++
		}
	}
	for email, until := range m.cooldownUntil {
		if !now.Before(until) {
			delete(m.cooldownUntil, email)
		}
	}
	return removed
}

// Len reports the number of stored challenges, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.challenges)
}

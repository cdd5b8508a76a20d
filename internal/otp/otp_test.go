package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sentMessage struct {
	to, subject, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to: to, subject: subject, body: body})
	return s.err
}

func (s *recordingSender) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newRedisTestBackend(t *testing.T) Backend {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "")
}

var backends = map[string]func(t *testing.T) Backend{
	"memory": func(*testing.T) Backend { return NewMemoryBackend() },
	"redis":  newRedisTestBackend,
}

type fixture struct {
	store  *Challenges
	sender *recordingSender
	clock  *testClock
}

func newFixture(t *testing.T, newBackend func(*testing.T) Backend, opts Options) fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	sender := &recordingSender{}
	opts.Now = clock.Now
	return fixture{store: NewChallenges(newBackend(t), sender, opts), sender: sender, clock: clock}
}

func mustVerify(t *testing.T, s Store, email, code string, want bool) {
	t.Helper()
	got, err := s.Verify(context.Background(), email, code)
	if err != nil {
		t.Fatalf("Verify(%q, %q): %v", email, code, err)
	}
	if got != want {
		t.Fatalf("Verify(%q, %q) = %v, want %v", email, code, got, want)
	}
}

func otherCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func TestChallenges(t *testing.T) {
	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("generate verify clear", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				code, err := f.store.Generate(ctx, "a@b.com")
				if err != nil {
					t.Fatalf("Generate: %v", err)
				}
				if !IsCode(code) {
					t.Fatalf("code %q is not six digits", code)
				}
				mustVerify(t, f.store, "a@b.com", code, true)
				mustVerify(t, f.store, "a@b.com", code, true)
				if err := f.store.Clear(ctx, "a@b.com"); err != nil {
					t.Fatalf("Clear: %v", err)
				}
				mustVerify(t, f.store, "a@b.com", code, false)
			})

			t.Run("wrong code and unknown email", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				code, _ := f.store.Generate(ctx, "a@b.com")
				mustVerify(t, f.store, "a@b.com", otherCode(code), false)
				mustVerify(t, f.store, "A@b.com", code, false)
				mustVerify(t, f.store, "nobody@b.com", code, false)
				mustVerify(t, f.store, "a@b.com", " "+code, false)
				mustVerify(t, f.store, "a@b.com", "", false)
			})

			t.Run("latest wins", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				first, _ := f.store.Generate(ctx, "a@b.com")
				second, err := f.store.Generate(ctx, "a@b.com")
				if err != nil {
					t.Fatalf("second Generate: %v", err)
				}
				if first != second {
					mustVerify(t, f.store, "a@b.com", first, false)
				}
				mustVerify(t, f.store, "a@b.com", second, true)
			})

			t.Run("cooldown", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{Cooldown: time.Minute})
				code, _ := f.store.Generate(ctx, "a@b.com")
				f.clock.Advance(30 * time.Second)
				if _, err := f.store.Generate(ctx, "a@b.com"); !errors.Is(err, ErrCooldown) {
					t.Fatalf("err = %v, want ErrCooldown", err)
				}
				mustVerify(t, f.store, "a@b.com", code, true)
				if _, err := f.store.Generate(ctx, "c@d.com"); err != nil {
					t.Fatalf("other email blocked: %v", err)
				}
				if len(f.sender.sent) != 2 {
					t.Fatalf("sent %d messages, want 2", len(f.sender.sent))
				}
			})

			t.Run("cooldown survives exhausted attempts", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{Cooldown: time.Minute, MaxAttempts: 3})
				code, _ := f.store.Generate(ctx, "a@b.com")
				wrong := otherCode(code)
				for i := 0; i < 3; i++ {
					mustVerify(t, f.store, "a@b.com", wrong, false)
				}
				mustVerify(t, f.store, "a@b.com", code, false)

				f.clock.Advance(10 * time.Second)
				if _, err := f.store.Generate(ctx, "a@b.com"); !errors.Is(err, ErrCooldown) {
					t.Fatalf("err = %v, want ErrCooldown", err)
				}
				if len(f.sender.sent) != 1 {
					t.Fatalf("sent %d messages, want 1", len(f.sender.sent))
				}

				if err := f.store.Clear(ctx, "a@b.com"); err != nil {
					t.Fatalf("Clear: %v", err)
				}
				fresh, err := f.store.Generate(ctx, "a@b.com")
				if err != nil {
					t.Fatalf("Generate after Clear: %v", err)
				}
				mustVerify(t, f.store, "a@b.com", fresh, true)
			})

			t.Run("expiry", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{TTL: 5 * time.Minute})
				code, _ := f.store.Generate(ctx, "a@b.com")
				f.clock.Advance(5*time.Minute - time.Second)
				mustVerify(t, f.store, "a@b.com", code, true)
				f.clock.Advance(time.Second)
				mustVerify(t, f.store, "a@b.com", code, false)
				f.clock.Advance(-time.Minute)
				mustVerify(t, f.store, "a@b.com", code, false)
			})

			t.Run("attempt limit", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{MaxAttempts: 3})
				code, _ := f.store.Generate(ctx, "a@b.com")
				wrong := otherCode(code)
				mustVerify(t, f.store, "a@b.com", wrong, false)
				mustVerify(t, f.store, "a@b.com", wrong, false)
				mustVerify(t, f.store, "a@b.com", code, true)
				mustVerify(t, f.store, "a@b.com", wrong, false)
				mustVerify(t, f.store, "a@b.com", code, false)
			})

			t.Run("malformed codes cost no attempt", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{MaxAttempts: 3})
				code, _ := f.store.Generate(ctx, "a@b.com")
				for _, malformed := range []string{"12345", "1234567", "12345a", " " + code, code + "\n"} {
					mustVerify(t, f.store, "a@b.com", malformed, false)
				}
				mustVerify(t, f.store, "a@b.com", code, true)
			})

			t.Run("delivery failure keeps challenge", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				f.sender.err = errors.New("smtp: connection refused")
				code, err := f.store.Generate(ctx, "a@b.com")
				if !errors.Is(err, ErrDelivery) {
					t.Fatalf("err = %v, want ErrDelivery", err)
				}
				mustVerify(t, f.store, "a@b.com", code, true)
			})

			t.Run("message", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				code, _ := f.store.Generate(ctx, "a@b.com")
				msg := f.sender.last()
				if msg.to != "a@b.com" || msg.subject != "Your Password Reset OTP" {
					t.Fatalf("unexpected message %+v", msg)
				}
				if !strings.Contains(msg.body, code) || !strings.Contains(msg.body, "valid for 5 minutes") {
					t.Fatalf("body %q lacks code or validity", msg.body)
				}
			})

			t.Run("blank email", func(t *testing.T) {
				f := newFixture(t, newBackend, Options{})
				if _, err := f.store.Generate(ctx, "  "); !errors.Is(err, ErrEmptyEmail) {
					t.Fatalf("err = %v, want ErrEmptyEmail", err)
				}
			})
		})
	}
}

func TestMemoryBackendConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewChallenges(NewMemoryBackend(), &recordingSender{}, Options{Cooldown: 0})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			code, err := store.Generate(ctx, "race@b.com")
			if err != nil {
				t.Errorf("Generate: %v", err)
				return
			}
			if !IsCode(code) {
				t.Errorf("bad code %q", code)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.Verify(ctx, "race@b.com", "123456"); err != nil {
				t.Errorf("Verify: %v", err)
			}
		}()
	}
	wg.Wait()

	code, err := store.Generate(ctx, "race@b.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustVerify(t, store, "race@b.com", code, true)
}

func TestMemoryBackendDropsExpiredOnSave(t *testing.T) {
	backend := NewMemoryBackend()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := NewChallenges(backend, &recordingSender{}, Options{TTL: time.Minute, Now: clock.Now})

	_, _ = store.Generate(context.Background(), "old@b.com")
	clock.Advance(2 * time.Minute)
	_, _ = store.Generate(context.Background(), "new@b.com")

	if got := backend.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestRedisBackendCheckContention(t *testing.T) {
	backend := newRedisTestBackend(t).(*RedisBackend)
	backend.retries = 0
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := NewChallenges(backend, &recordingSender{}, Options{Now: clock.Now})

	code, err := store.Generate(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ok, err := store.Verify(context.Background(), "a@b.com", code)
	if ok || !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("Verify = %v, %v; want false, ErrRedisUnavailable", ok, err)
	}
}

func TestMemoryBackendCooldownOutlivesExpiry(t *testing.T) {
	backend := NewMemoryBackend()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := NewChallenges(backend, &recordingSender{}, Options{TTL: time.Minute, Cooldown: 50 * time.Second, Now: clock.Now})
	ctx := context.Background()

	if _, err := store.Generate(ctx, "a@b.com"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	clock.Advance(40 * time.Second)
	if _, err := store.Generate(ctx, "a@b.com"); !errors.Is(err, ErrCooldown) {
		t.Fatalf("err = %v, want ErrCooldown", err)
	}
	clock.Advance(10 * time.Second)
	if _, err := store.Generate(ctx, "a@b.com"); err != nil {
		t.Fatalf("Generate after cooldown: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if removed := backend.Prune(clock.Now(), time.Minute); removed != 1 {
		t.Fatalf("Prune() = %d, want 1", removed)
	}
	backend.mu.Lock()
	windows := len(backend.cooldownUntil)
	backend.mu.Unlock()
	if windows != 0 {
		t.Fatalf("%d cooldown windows left after Prune", windows)
	}
}

func TestNewCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("NewCode: %v", err)
		}
		if !IsCode(code) {
			t.Fatalf("NewCode() = %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 150 {
		t.Fatalf("only %d distinct codes in 200 draws", len(seen))
	}
}

func TestIsCode(t *testing.T) {
	tests := map[string]bool{
		"000000":  true,
		"123456":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
		"１２３４５６": false,
	}
	for in, want := range tests {
		if got := IsCode(in); got != want {
			t.Errorf("IsCode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMessageUnits(t *testing.T) {
	if _, body := Message("123456", 30*time.Second); !strings.Contains(body, "valid for 1 minute.") {
		t.Errorf("body = %q", body)
	}
}

func TestSweep(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	store := NewChallenges(backend, &recordingSender{}, Options{TTL: time.Minute, Now: clock.Now})

	_, _ = store.Generate(context.Background(), "a@b.com")
	_, _ = store.Generate(context.Background(), "c@d.com")
	if got := store.Sweep(); got != 0 {
		t.Fatalf("Sweep() before expiry = %d, want 0", got)
	}
	clock.Advance(time.Minute)
	if got := store.Sweep(); got != 2 {
		t.Fatalf("Sweep() = %d, want 2", got)
	}
	if backend.Len() != 0 {
		t.Fatalf("Len() = %d after sweep", backend.Len())
	}

	redisStore := NewChallenges(newRedisTestBackend(t), &recordingSender{}, Options{})
	if got := redisStore.Sweep(); got != 0 {
		t.Fatalf("redis Sweep() = %d, want 0", got)
	}
}

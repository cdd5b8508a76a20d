package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("otp redis unavailable")

const maxCheckRetries = 4

// RedisBackend stores challenges as JSON with a PX expiry so they survive restarts and
// are shared between replicas. Both keys of one email share a hash slot.
type RedisBackend struct {
	redis   redis.UniversalClient
	prefix  string
	retries int
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend returns a backend using keys under prefix (default "otp").
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisBackend{redis: client, prefix: prefix, retries: maxCheckRetries}
}

func (r *RedisBackend) challengeKey(email string) string {
	return r.prefix + ":{" + email + "}:challenge"
}

func (r *RedisBackend) cooldownKey(email string) string {
	return r.prefix + ":{" + email + "}:cooldown"
}

func (r *RedisBackend) Save(ctx context.Context, c domain.OtpChallenge, ttl, cooldown time.Duration) error {
	c.Attempts = 0
	encoded, err := json.Marshal(c)
	if err != nil {
		return err
	}

	if cooldown > 0 {
		acquired, err := r.redis.SetNX(ctx, r.cooldownKey(c.Email), c.CreatedAt.UnixMilli(), cooldown).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !acquired {
			return ErrCooldown
		}
	}

	if err := r.redis.Set(ctx, r.challengeKey(c.Email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Check(ctx context.Context, email, code string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error) {
	key := r.challengeKey(email)

	for i := 0; i < r.retries; i++ {
		matched := false

		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var c domain.OtpChallenge
			if err := json.Unmarshal(data, &c); err != nil {
				return err
			}

			if c.ExpiredAt(now, ttl) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			if codesEqual(c.Code, code) {
				matched = true
				return nil
			}

			c.Attempts++
			remaining := c.CreatedAt.Add(ttl).Sub(now)
			if c.Attempts >= maxAttempts || remaining <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := json.Marshal(c)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, remaining)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return matched, nil
	}

	return false, fmt.Errorf("%w: %s kept changing during %d checks", ErrRedisUnavailable, key, r.retries)
}

func (r *RedisBackend) Delete(ctx context.Context, email string) error {
	if err := r.redis.Del(ctx, r.challengeKey(email), r.cooldownKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

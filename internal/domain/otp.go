package domain

import "time"

// OtpChallenge is the pending passcode for one email address.
type OtpChallenge struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// ExpiredAt reports whether the challenge is past ttl at now.
func (c OtpChallenge) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !now.Before(c.CreatedAt.Add(ttl))
}

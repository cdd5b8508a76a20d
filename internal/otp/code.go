package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeDigits is the fixed width of a passcode.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// NewCode returns a uniformly random, zero-padded six digit code from crypto/rand.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// IsCode reports whether s has the passcode shape: exactly six ASCII digits.
func IsCode(s string) bool {
	if len(s) != CodeDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package auth

import "errors"

var (
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for well-formed tokens past their expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrUnauthenticated means no usable identity could be derived from the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the identity lacks the capability an operation requires.
	ErrForbidden = errors.New("forbidden")
)

package service

import "errors"

// Closed error taxonomy. Handlers map these to transport status codes in one
// place; everything a service method can fail with is one of these or a
// wrapped ErrUnavailable.
var (
	ErrLinkNotFound     = errors.New("link not found")
	ErrLinkExpired      = errors.New("link expired")
	ErrShortCodeTaken   = errors.New("short code already taken")
	ErrInvalidAlias     = errors.New("invalid custom alias")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUserNotFound     = errors.New("user not found")
	ErrUnauthorized     = errors.New("not the owner of this link")
	ErrLimitExceeded    = errors.New("link limit reached")

	// ErrUnavailable wraps transient dependency failures (store timeout,
	// connection refused). Callers may retry at their discretion.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

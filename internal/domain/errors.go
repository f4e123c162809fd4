package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnknownSource  = errors.New("unknown source")
	ErrInvalidRequest = errors.New("invalid request")
)

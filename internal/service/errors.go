package service

import "errors"

var (
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage error")
	ErrRateLimited     = errors.New("rate limited")
)

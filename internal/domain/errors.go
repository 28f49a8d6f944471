package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
	ErrMarketSuspended = errors.New("market suspended")
	ErrFeedClosed      = errors.New("change feed closed")
	ErrLockHeld        = errors.New("lock already held")
	ErrUnknownOutcome  = errors.New("unknown outcome")
)

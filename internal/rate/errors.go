package rate

import "errors"

var (
	// ErrRateLimited is returned when the refresh attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis infrastructure failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

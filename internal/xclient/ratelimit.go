package xclient

import (
	"golang.org/x/time/rate"
)

// newLimiter paces outbound requests. rps <= 0 means unlimited. The limiter
// only spaces requests out; a 429 is still returned to the caller.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

package policy

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempt counting
// is zero-based: attempt 0 is the first retry after the initial
// failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt with up to one second of
// jitter: min(Base * 2^attempt + jitter[0,1s), Cap).
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the exponential backoff for the given attempt.
func (e Exponential) Delay(attempt int) time.Duration {
	d := float64(e.Base) * math.Pow(2, float64(attempt))
	d += rand.Float64() * float64(time.Second)
	if e.Cap > 0 && d > float64(e.Cap) {
		return e.Cap
	}
	return time.Duration(d)
}

// Linear grows the delay proportionally to the attempt number:
// min(Base * (attempt+1), Cap).
type Linear struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the linear backoff for the given attempt.
func (l Linear) Delay(attempt int) time.Duration {
	d := l.Base * time.Duration(attempt+1)
	if l.Cap > 0 && d > l.Cap {
		return l.Cap
	}
	return d
}

// SoftFailure is the profile for generic transient errors.
func SoftFailure() Strategy {
	return Exponential{Base: 5 * time.Second, Cap: 2 * time.Minute}
}

// EmptyResult is the profile for calls that returned no usable text.
// The schedule is deliberately linear and short: empty results tend to
// clear on the next attempt.
func EmptyResult() Strategy {
	return Linear{Base: 2 * time.Second, Cap: 2 * time.Minute}
}

// RateLimit is the profile for classified rate-limit errors. It backs
// off harder and caps at five minutes.
func RateLimit() Strategy {
	return Exponential{Base: 10 * time.Second, Cap: 5 * time.Minute}
}

package retry

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Backoff computes the delay before the next reconnect attempt.
type Backoff interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(int) time.Duration {
	if b.Delay <= 0 {
		return time.Second
	}
	return b.Delay
}

// ExponentialBackoff grows delays by powers of two, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay for the given attempt (1-based).
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	// past 2^30 the shift overflows; every sane cap is reached long before
	if attempt > 31 {
		attempt = 31
	}
	delay := base << (attempt - 1)
	if delay <= 0 || (b.Max > 0 && delay > b.Max) {
		if b.Max > 0 {
			return b.Max
		}
		return base << 30
	}
	return delay
}

// JitteredBackoff keeps half of the wrapped delay and randomises the other half, so
// clients dropped by the same server restart do not reconnect in lockstep.
type JitteredBackoff struct {
	Backoff Backoff
	rand    func(n int64) int64
}

func NewJitteredBackoff(b Backoff) JitteredBackoff {
	return JitteredBackoff{Backoff: b, rand: rand.Int64N}
}

func (b JitteredBackoff) Next(attempt int) time.Duration {
	delay := b.Backoff.Next(attempt)
	half := int64(delay / 2)
	if half <= 0 {
		return delay
	}
	pick := b.rand
	if pick == nil {
		pick = rand.Int64N
	}
	return time.Duration(half + pick(half+1))
}

// DefaultBackoff returns the default reconnect policy.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Base: 500 * time.Millisecond,
		Max:  30 * time.Second,
	}
}

// Policy names accepted by FromPolicy.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// FromPolicy builds a Backoff from configuration values.
func FromPolicy(policy string, base, max time.Duration, jitter bool) (Backoff, error) {
	var b Backoff
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case PolicyFixed:
		b = FixedBackoff{Delay: base}
	case PolicyExponential, "":
		b = ExponentialBackoff{Base: base, Max: max}
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", policy)
	}
	if jitter {
		b = NewJitteredBackoff(b)
	}
	return b, nil
}

// Package reliability runs upstream calls under a retry budget: it composes the
// connect, request, first-byte and idle timers, classifies every failure exactly once,
// and refuses to retry once a byte has reached the caller.
package reliability

import (
	"math"
	"time"

	"github.com/pysugar/aoai-nexus/internal/config"
)

// DefaultRetryStatuses are the backend statuses retried when the config names none.
var DefaultRetryStatuses = []int{408, 409, 425, 429, 500, 502, 503, 504}

// Policy is the per-call RetryPolicy. It is built once per call and never mutated.
type Policy struct {
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	FirstByteTimeout time.Duration
	IdleTimeout      time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	JitterFraction   float64
	RetryStatuses    map[int]bool
}

func DefaultPolicy() Policy {
	return Policy{
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   120 * time.Second,
		FirstByteTimeout: 30 * time.Second,
		IdleTimeout:      45 * time.Second,
		MaxRetries:       2,
		BackoffBase:      400 * time.Millisecond,
		BackoffMax:       5 * time.Second,
		JitterFraction:   0.25,
		RetryStatuses:    statusSet(DefaultRetryStatuses),
	}
}

// PolicyFromConfig overlays the configured knobs on DefaultPolicy.
func PolicyFromConfig(c config.UpstreamPolicy) Policy {
	p := DefaultPolicy()
	ms := func(dst *time.Duration, v *int) {
		if v != nil && *v >= 0 {
			*dst = time.Duration(*v) * time.Millisecond
		}
	}
	ms(&p.ConnectTimeout, c.ConnectTimeoutMs)
	ms(&p.RequestTimeout, c.RequestTimeoutMs)
	ms(&p.FirstByteTimeout, c.FirstByteTimeoutMs)
	ms(&p.IdleTimeout, c.IdleTimeoutMs)
	ms(&p.BackoffBase, c.RetryBaseMs)
	ms(&p.BackoffMax, c.RetryMaxMs)
	if c.MaxRetries != nil && *c.MaxRetries >= 0 {
		p.MaxRetries = *c.MaxRetries
	}
	if c.RetryJitter != nil && *c.RetryJitter >= 0 {
		p.JitterFraction = *c.RetryJitter
	}
	if len(c.RetryStatuses) > 0 {
		p.RetryStatuses = statusSet(c.RetryStatuses)
	}
	return p
}

func statusSet(statuses []int) map[int]bool {
	set := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// Attempts is the retry budget: MaxRetries+1, never less than one.
func (p Policy) Attempts() int {
	return max(1, p.MaxRetries+1)
}

// RetryableStatus reports whether a backend status is in the retry set.
func (p Policy) RetryableStatus(status int) bool {
	return p.RetryStatuses[status]
}

// Backoff returns the sleep before attempt+1, given that attempt (1-based) just failed.
// The exponential part is base*2^(attempt-1) capped at BackoffMax; up to JitterFraction
// of it is added on top and the sum is capped again. rnd returns a value in [0,1).
func (p Policy) Backoff(attempt int, rnd func() float64) time.Duration {
	exp := max(0, attempt-1)
	base := float64(p.BackoffBase) * math.Pow(2, float64(exp))
	if limit := float64(p.BackoffMax); base > limit {
		base = limit
	}
	spread := math.Max(1, math.Floor(base*p.JitterFraction))
	total := time.Duration(base + math.Floor(rnd()*spread))
	return min(total, p.BackoffMax)
}

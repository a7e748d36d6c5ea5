package lifecycle

import (
	"math/rand"
	"time"
)

// RestartPolicy decides how long to wait before the next launch. restarts
// is the number of restarts already performed. ok=false means give up.
type RestartPolicy interface {
	Delay(restarts int) (delay time.Duration, ok bool)
}

// FixedDelay waits d before every restart and never gives up.
type FixedDelay time.Duration

// Delay implements RestartPolicy.
func (f FixedDelay) Delay(int) (time.Duration, bool) {
	return time.Duration(f), true
}

// ExponentialBackoff doubles the delay after each restart, capped at Max.
// Jitter is a fraction (e.g. 0.2 for ±20%) applied to every delay.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// Delay implements RestartPolicy.
func (b ExponentialBackoff) Delay(restarts int) (time.Duration, bool) {
	if b.Initial <= 0 {
		return 0, true
	}
	current := b.Initial
	for i := 0; i < restarts && current < b.Max; i++ {
		current *= 2
	}
	if current > b.Max {
		current = b.Max
	}
	if b.Jitter > 0 {
		jitter := float64(current) * b.Jitter * (rand.Float64()*2 - 1)
		current = time.Duration(float64(current) + jitter)
	}
	return current, true
}

// MaxAttempts stops restarting after Limit restarts, delegating the delay
// to Policy.
type MaxAttempts struct {
	Policy RestartPolicy
	Limit  int
}

// Delay implements RestartPolicy.
func (m MaxAttempts) Delay(restarts int) (time.Duration, bool) {
	if restarts >= m.Limit {
		return 0, false
	}
	return m.Policy.Delay(restarts)
}

// NewPolicy builds the policy selected by configuration: a fixed delay,
// exponential backoff when max exceeds delay, capped by maxRestarts when
// positive.
func NewPolicy(delay, max time.Duration, maxRestarts int) RestartPolicy {
	var p RestartPolicy = FixedDelay(delay)
	if max > delay {
		p = ExponentialBackoff{Initial: delay, Max: max, Jitter: 0.2}
	}
	if maxRestarts > 0 {
		p = MaxAttempts{Policy: p, Limit: maxRestarts}
	}
	return p
}

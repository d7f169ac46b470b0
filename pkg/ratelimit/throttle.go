package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"tweetharvest/pkg/retry"
)

// Throttle keeps a pause of at least one interval between the end of one
// call and the start of the next. It is independent of server limits.
type Throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
	clock    retry.Clock
}

// NewThrottle creates a throttle with the given pause.
// A non-positive interval disables throttling.
func NewThrottle(interval time.Duration, clock retry.Clock) *Throttle {
	if clock == nil {
		clock = retry.SystemClock{}
	}
	t := &Throttle{interval: interval, clock: clock}
	if interval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return t
}

// Wait blocks until one interval has passed since the last Done.
// Returns the time waited.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	if t.limiter == nil {
		return 0, nil
	}
	missing := 1 - t.limiter.TokensAt(t.clock.Now())
	if missing <= 0 {
		return 0, nil
	}
	delay := time.Duration(missing * float64(t.interval))
	if err := t.clock.Sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}

// Done marks the end of a call. The next Wait is measured from here.
func (t *Throttle) Done() {
	if t.limiter == nil {
		return
	}
	// after a completed Wait the token is back, so this always takes it
	t.limiter.AllowN(t.clock.Now(), 1)
}

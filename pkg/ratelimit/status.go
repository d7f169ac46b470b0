package ratelimit

import (
	"fmt"
	"time"
)

// resetSlack is added to every server-reported reset so the retry lands after the window rolls over.
const resetSlack = time.Second

// Status is the server's view of one endpoint's request window.
type Status struct {
	Resource  string
	Endpoint  string
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// WaitFrom returns how long to pause at now before the endpoint accepts calls
// again: the time until reset plus one second, never negative.
func (s Status) WaitFrom(now time.Time) time.Duration {
	wait := s.ResetAt.Sub(now) + resetSlack
	if wait < 0 {
		return 0
	}
	return wait
}

func (s Status) String() string {
	return fmt.Sprintf("%s %d/%d reset %s", s.Endpoint, s.Remaining, s.Limit, s.ResetAt.UTC().Format(time.RFC3339))
}

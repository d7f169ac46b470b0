// Package ratelimit models the two kinds of pacing the fetch loops deal with.
//
// Status is what the API reports for an endpoint when it refuses a call:
// remaining requests, the window size and the reset time. WaitFrom turns it
// into the pause before the same call is attempted again.
//
// Throttle is the client-side spacing between consecutive calls, built on
// golang.org/x/time/rate and driven by an injectable clock.
package ratelimit

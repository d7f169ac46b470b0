// Package retry provides backoff strategies, a bounded retry helper and the
// Clock abstraction shared by the fetch loops.
//
// Do retries an operation while its error is retryable:
//
//	token, err := retry.DoWithResult(fetchToken, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Context:     ctx,
//	})
//
// Policy describes how the batch and page loops treat ordinary failures:
// a constant or exponential delay and an optional cap on re-attempts.
// A zero cap means the loop retries forever.
package retry

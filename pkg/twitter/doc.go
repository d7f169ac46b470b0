// Package twitter is a small client for the v1.1 REST endpoints used to
// collect posts in bulk: batch lookup by identifier, paginated search and
// the application rate limit status.
//
// Authenticate performs the app-only (client credentials) handshake once and
// returns a Client whose transport carries the bearer token:
//
//	client, err := twitter.Authenticate(ctx, twitter.Options{
//		AppKey:    key,
//		AppSecret: secret,
//	})
//	records, err := client.Lookup(ctx, ids, twitter.TweetModeExtended)
//
// Failures are reported as *errors.Error values: a refused call carries
// ErrorTypeRateLimit, rejected credentials ErrorTypeAuth.
package twitter

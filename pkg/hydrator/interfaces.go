package hydrator

import (
	"context"

	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/twitter"
)

// Client is the part of the API the hydrator drives.
type Client interface {
	Lookup(ctx context.Context, ids []uint64, tweetMode string) ([]twitter.Record, error)
	RateLimit(ctx context.Context, res twitter.Resource) (*ratelimit.Status, error)
}

// BatchSource yields identifier batches; an empty batch ends the input.
type BatchSource interface {
	Next() ([]uint64, error)
}

// FailureSink receives identifiers that could not be fetched.
type FailureSink interface {
	WriteID(id uint64) error
}

package hydrator

import (
	"context"
	"fmt"
	"time"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/storage"
	"tweetharvest/pkg/twitter"
)

const (
	// DefaultRetryInterval is the pause after a failed call
	DefaultRetryInterval = 30 * time.Second

	// DefaultProgressInterval is the minimum spacing of progress lines
	DefaultProgressInterval = 10 * time.Second
)

// Options tunes a Hydrator.
type Options struct {
	// TweetMode is passed to every lookup, e.g. twitter.TweetModeExtended
	TweetMode string
	// RetryInterval is the pause used when the rate limit status itself
	// cannot be read
	RetryInterval time.Duration
	// Policy caps and spaces retries after ordinary failures
	Policy retry.Policy
	// Interval is the pause between the end of one batch and the next
	// lookup; <= 0 disables it
	Interval         time.Duration
	ProgressInterval time.Duration
	// Skip holds identifiers resolved by an earlier run
	Skip    storage.Resolved
	Clock   retry.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Stats summarises a run.
type Stats struct {
	// Total counts identifiers attempted, Skipped those left out by Skip
	Total       int
	Captured    int
	Failed      int
	Skipped     int
	Interrupted bool
}

// Hydrator runs the batch lookup loop.
type Hydrator struct {
	client   Client
	records  storage.RecordSink
	failures FailureSink
	opts     Options
	throttle *ratelimit.Throttle
	logger   logger.Logger
	clock    retry.Clock

	stats        Stats
	lastProgress time.Time
}

// New creates a Hydrator writing to records and failures.
func New(client Client, records storage.RecordSink, failures FailureSink, opts Options) *Hydrator {
	if opts.Clock == nil {
		opts.Clock = retry.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Policy.Backoff == nil {
		opts.Policy.Backoff = &retry.ConstantBackoff{Delay: opts.RetryInterval}
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}

	return &Hydrator{
		client:   client,
		records:  records,
		failures: failures,
		opts:     opts,
		throttle: ratelimit.NewThrottle(opts.Interval, opts.Clock),
		logger:   opts.Logger.WithField("component", "hydrator"),
		clock:    opts.Clock,
	}
}

// Run consumes src until it is exhausted or ctx is cancelled. The returned
// error is non-nil only for failures that make continuing pointless:
// rejected credentials, an unreadable input or an unwritable sink.
func (h *Hydrator) Run(ctx context.Context, src BatchSource) (Stats, error) {
	h.lastProgress = h.clock.Now()

	for {
		if ctx.Err() != nil {
			h.stats.Interrupted = true
			break
		}

		batch, err := src.Next()
		if err != nil {
			return h.stats, err
		}
		if len(batch) == 0 {
			break
		}

		batch = h.skipResolved(batch)
		if len(batch) == 0 {
			continue
		}

		// a batch that is not resolved stays out of both sinks so a resumed run picks it up
		if _, err := h.throttle.Wait(ctx); err != nil {
			h.stats.Interrupted = true
			break
		}

		resolved, err := h.resolve(ctx, batch)
		if err != nil {
			return h.stats, err
		}
		if !resolved {
			h.stats.Interrupted = true
			break
		}
		h.stats.Total += len(batch)
		h.opts.Metrics.Identifiers(len(batch))
		h.throttle.Done()

		h.maybeReportProgress()
	}

	h.logger.InfoWithFields(fmt.Sprintf("Captured %d/%d total tweets.", h.stats.Captured, h.stats.Total), map[string]interface{}{
		"captured":    h.stats.Captured,
		"total":       h.stats.Total,
		"failed":      h.stats.Failed,
		"skipped":     h.stats.Skipped,
		"interrupted": h.stats.Interrupted,
	})
	return h.stats, nil
}

func (h *Hydrator) skipResolved(batch []uint64) []uint64 {
	if len(h.opts.Skip) == 0 {
		return batch
	}
	kept := batch[:0]
	for _, id := range batch {
		if h.opts.Skip.Has(id) {
			h.stats.Skipped++
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// resolve retries one batch until every identifier is in a sink. It reports
// false, with nothing written, when ctx is cancelled during a pause.
func (h *Hydrator) resolve(ctx context.Context, batch []uint64) (bool, error) {
	// an interrupt must not abort a call whose results would then be lost
	callCtx := context.WithoutCancel(ctx)
	failures := 0

	for {
		records, err := h.client.Lookup(callCtx, batch, h.opts.TweetMode)
		if err == nil {
			rest, err := h.writeRecords(callCtx, batch, records)
			if err != nil {
				return true, err
			}
			return true, h.fail(rest, "not returned")
		}

		h.opts.Metrics.RequestError(string(errs.TypeOf(err)))

		var wait time.Duration
		switch {
		case errs.IsAuth(err):
			return true, err
		case errs.TypeOf(err) == errs.ErrorTypeNotFound:
			return true, h.fail(batch, "not found")
		case errs.IsRateLimit(err):
			wait = h.rateLimitWait(callCtx)
		default:
			failures++
			if h.opts.Policy.Exhausted(failures) {
				h.logger.WithError(err).WithFields(map[string]interface{}{
					"batch_size": len(batch),
					"attempts":   failures,
				}).Error("Giving up on batch")
				return true, h.fail(batch, "retries exhausted")
			}
			wait = h.opts.Policy.Delay(failures)
			h.logger.WithError(err).WithField("attempt", failures).Error("Lookup failed")
			h.logger.Info(fmt.Sprintf("Sleeping for %.0f seconds...", wait.Seconds()))
		}

		if err := h.clock.Sleep(ctx, wait); err != nil {
			h.logger.DebugWithFields("Batch left unresolved by interrupt", map[string]interface{}{
				"count": len(batch),
			})
			return false, nil
		}
	}
}

// writeRecords sends each record to the record sink and returns the
// identifiers of batch that no record matched.
func (h *Hydrator) writeRecords(ctx context.Context, batch []uint64, records []twitter.Record) ([]uint64, error) {
	rest := append([]uint64(nil), batch...)

	for _, rec := range records {
		i := indexOf(rest, rec.ID)
		if i < 0 {
			h.logger.WarnWithFields("Ignoring record that was not requested", map[string]interface{}{
				"id": rec.ID,
			})
			continue
		}
		if err := h.records.WriteRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("record sink: %w", err)
		}
		rest = append(rest[:i], rest[i+1:]...)
		h.stats.Captured++
		h.opts.Metrics.Captured(1)
	}
	return rest, nil
}

func (h *Hydrator) fail(ids []uint64, reason string) error {
	for _, id := range ids {
		if err := h.failures.WriteID(id); err != nil {
			return fmt.Errorf("failure sink: %w", err)
		}
	}
	if len(ids) > 0 {
		h.stats.Failed += len(ids)
		h.opts.Metrics.Failed(len(ids))
		h.logger.DebugWithFields("Identifiers written to failure sink", map[string]interface{}{
			"count":  len(ids),
			"reason": reason,
		})
	}
	return nil
}

// rateLimitWait asks the server when the lookup window resets.
func (h *Hydrator) rateLimitWait(ctx context.Context) time.Duration {
	res := twitter.LookupResource
	status, err := h.client.RateLimit(ctx, res)
	if err != nil {
		h.logger.WithError(err).Warn("Could not read rate limit status")
		h.opts.Metrics.RateLimitWait(res.Name, h.opts.RetryInterval)
		return h.opts.RetryInterval
	}

	wait := status.WaitFrom(h.clock.Now())
	logger.LogRateLimit(h.logger, status.Endpoint, status.Remaining, status.Limit, wait)
	h.opts.Metrics.RateLimitWait(res.Name, wait)
	return wait
}

func (h *Hydrator) maybeReportProgress() {
	now := h.clock.Now()
	if now.Sub(h.lastProgress) < h.opts.ProgressInterval {
		return
	}
	logger.LogProgress(h.logger, h.stats.Captured, h.stats.Total)
	h.lastProgress = now
}

func indexOf(ids []uint64, id uint64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

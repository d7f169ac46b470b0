// Package search walks the pages of a search query from newest to oldest
// and writes every post as a tabular row.
package search

import (
	"bytes"
	"context"
	"fmt"
	"time"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/twitter"
)

// Client is the part of the API the walker drives.
type Client interface {
	Search(ctx context.Context, p twitter.SearchParams) (*twitter.SearchPage, error)
	RateLimit(ctx context.Context, res twitter.Resource) (*ratelimit.Status, error)
}

// RowSink receives one post per row.
type RowSink interface {
	WriteTweet(t *twitter.Tweet) error
}

// StopReason says why a walk ended.
type StopReason string

const (
	StopEmpty       StopReason = "empty_page"
	StopIdentical   StopReason = "identical_page"
	StopMaxPages    StopReason = "max_pages"
	StopCursor      StopReason = "cursor_stalled"
	StopInterrupted StopReason = "interrupted"
)

// Options tunes a Walker.
type Options struct {
	Count      int
	MaxPages   int
	TweetMode  string
	ResultType string
	Lang       string
	// RetryInterval is the pause used when the rate limit status cannot be read
	RetryInterval time.Duration
	Policy        retry.Policy
	// ProgressEvery logs a line each time this many rows have been written
	ProgressEvery int
	Clock         retry.Clock
	Logger        logger.Logger
	Metrics       *metrics.Metrics
}

// Result summarises a walk.
type Result struct {
	Rows    int
	Pages   int
	Skipped int
	Stop    StopReason
}

// Walker runs the pagination loop for one query.
type Walker struct {
	client Client
	sink   RowSink
	opts   Options
	logger logger.Logger
	clock  retry.Clock
}

func New(client Client, sink RowSink, opts Options) *Walker {
	if opts.Clock == nil {
		opts.Clock = retry.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 30 * time.Second
	}
	if opts.Policy.Backoff == nil {
		opts.Policy.Backoff = &retry.ConstantBackoff{Delay: opts.RetryInterval}
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 1000
	}
	if opts.Count <= 0 {
		opts.Count = twitter.MaxSearchCount
	}
	return &Walker{
		client: client,
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.WithField("component", "search"),
		clock:  opts.Clock,
	}
}

// Run walks query until the results run out or ctx is cancelled. Rows
// written before an interrupt stay in the sink.
func (w *Walker) Run(ctx context.Context, query string) (Result, error) {
	var (
		res      Result
		cursor   uint64
		previous []byte
		failures int
	)

	for {
		if ctx.Err() != nil {
			res.Stop = StopInterrupted
			break
		}
		if w.opts.MaxPages > 0 && res.Pages >= w.opts.MaxPages {
			res.Stop = StopMaxPages
			break
		}

		page, err := w.client.Search(ctx, twitter.SearchParams{
			Query:      query,
			MaxID:      cursor,
			Count:      w.opts.Count,
			TweetMode:  w.opts.TweetMode,
			ResultType: w.opts.ResultType,
			Lang:       w.opts.Lang,
		})
		if err != nil {
			if ctx.Err() != nil {
				res.Stop = StopInterrupted
				break
			}
			w.opts.Metrics.RequestError(string(errs.TypeOf(err)))

			var wait time.Duration
			switch {
			case errs.IsAuth(err):
				return res, err
			case errs.IsRateLimit(err):
				wait = w.rateLimitWait(ctx)
			default:
				failures++
				if w.opts.Policy.Exhausted(failures) {
					return res, fmt.Errorf("search page failed %d times: %w", failures, err)
				}
				wait = w.opts.Policy.Delay(failures)
				w.logger.WithError(err).WithField("attempt", failures).Error("Search failed")
			}

			if err := w.clock.Sleep(ctx, wait); err != nil {
				res.Stop = StopInterrupted
				break
			}
			continue
		}
		failures = 0
		res.Pages++
		w.opts.Metrics.SearchPage()

		if page.Empty() {
			res.Stop = StopEmpty
			w.logger.Info("Finished.")
			break
		}
		if previous != nil && bytes.Equal(page.Raw, previous) {
			res.Stop = StopIdentical
			w.logger.Info("Finished.")
			break
		}

		if err := w.writePage(page, &res); err != nil {
			return res, err
		}
		previous = page.Raw

		oldest := page.MinID()
		if oldest == 1 {
			// nothing older can exist
			res.Stop = StopEmpty
			w.logger.Info("Finished.")
			break
		}
		if oldest == 0 || (cursor != 0 && oldest-1 >= cursor) {
			res.Stop = StopCursor
			w.logger.WarnWithFields("Search cursor did not advance", map[string]interface{}{
				"cursor": cursor,
				"oldest": oldest,
			})
			break
		}
		cursor = oldest - 1
	}

	w.logger.InfoWithFields(fmt.Sprintf("Got %d tweets.", res.Rows), map[string]interface{}{
		"rows":  res.Rows,
		"pages": res.Pages,
		"stop":  string(res.Stop),
	})
	return res, nil
}

func (w *Walker) writePage(page *twitter.SearchPage, res *Result) error {
	for i := range page.Statuses {
		status := &page.Statuses[i]
		if _, err := status.CreatedTime(); err != nil {
			res.Skipped++
			w.logger.WarnWithFields("Skipping post with unreadable timestamp", map[string]interface{}{
				"id":         status.IDStr,
				"created_at": status.CreatedAt,
			})
			continue
		}
		if err := w.sink.WriteTweet(status); err != nil {
			return fmt.Errorf("tabular sink: %w", err)
		}
		res.Rows++
		w.opts.Metrics.SearchRows(1)
		if res.Rows%w.opts.ProgressEvery == 0 {
			w.logger.Info(fmt.Sprintf("Got %d tweets.", res.Rows))
		}
	}
	return nil
}

// rateLimitWait asks the server when the search window resets.
func (w *Walker) rateLimitWait(ctx context.Context) time.Duration {
	res := twitter.SearchResource
	status, err := w.client.RateLimit(ctx, res)
	if err != nil {
		w.logger.WithError(err).Warn("Could not read rate limit status")
		w.opts.Metrics.RateLimitWait(res.Name, w.opts.RetryInterval)
		return w.opts.RetryInterval
	}

	wait := status.WaitFrom(w.clock.Now())
	logger.LogRateLimit(w.logger, status.Endpoint, status.Remaining, status.Limit, wait)
	w.opts.Metrics.RateLimitWait(res.Name, wait)
	return wait
}

package hydrator

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/input"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/storage"
	"tweetharvest/pkg/twitter"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClient answers lookups from a script; once the script runs out it
// returns every requested id that is in known.
type fakeClient struct {
	script    []func(ids []uint64) ([]twitter.Record, error)
	known     map[uint64]bool
	calls     [][]uint64
	resetAt   time.Time
	statusErr error
	statusN   int
}

func (f *fakeClient) Lookup(_ context.Context, ids []uint64, _ string) ([]twitter.Record, error) {
	f.calls = append(f.calls, append([]uint64(nil), ids...))
	if len(f.script) > 0 {
		step := f.script[0]
		f.script = f.script[1:]
		return step(ids)
	}
	var out []twitter.Record
	for _, id := range ids {
		if f.known == nil || f.known[id] {
			out = append(out, rec(id))
		}
	}
	return out, nil
}

func (f *fakeClient) RateLimit(_ context.Context, res twitter.Resource) (*ratelimit.Status, error) {
	f.statusN++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &ratelimit.Status{Resource: res.Name, Endpoint: res.Endpoint, Remaining: 0, Limit: 900, ResetAt: f.resetAt}, nil
}

func rec(id uint64) twitter.Record {
	return twitter.Record{ID: id, Fields: map[string]interface{}{"id": id}}
}

func fail(err error) func([]uint64) ([]twitter.Record, error) {
	return func([]uint64) ([]twitter.Record, error) { return nil, err }
}

type memRecords struct{ ids []uint64 }

func (m *memRecords) WriteRecord(_ context.Context, r twitter.Record) error {
	m.ids = append(m.ids, r.ID)
	return nil
}
func (m *memRecords) Close() error { return nil }

type memFailures struct{ ids []uint64 }

func (m *memFailures) WriteID(id uint64) error {
	m.ids = append(m.ids, id)
	return nil
}

type sliceSource struct{ batches [][]uint64 }

func (s *sliceSource) Next() ([]uint64, error) {
	if len(s.batches) == 0 {
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return append([]uint64(nil), b...), nil
}

func TestPartialResponseGoesToFailureSink(t *testing.T) {
	dir := t.TempDir()
	records, err := storage.NewRecordWriter(filepath.Join(dir, "ids_full.json"), storage.Truncate, false)
	require.NoError(t, err)
	failures, err := storage.NewIDWriter(filepath.Join(dir, "ids_errors.txt"), storage.Truncate, false)
	require.NoError(t, err)

	client := &fakeClient{known: map[uint64]bool{1: true, 3: true}}
	h := New(client, records, failures, Options{Clock: retry.NewFakeClock(epoch)})

	src := input.NewBatchReader(strings.NewReader("1\n2\n3\n"), 100, "", nil)
	stats, err := h.Run(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, records.Close())
	require.NoError(t, failures.Close())

	assert.Equal(t, Stats{Total: 3, Captured: 2, Failed: 1}, stats)

	full, _ := os.ReadFile(filepath.Join(dir, "ids_full.json"))
	assert.Equal(t, "{\"id\":1}\n{\"id\":3}\n", string(full))
	failed, _ := os.ReadFile(filepath.Join(dir, "ids_errors.txt"))
	assert.Equal(t, "2\n", string(failed))
}

func TestRateLimitSleepsUntilReset(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	client := &fakeClient{
		script:  []func([]uint64) ([]twitter.Record, error){fail(errs.NewRateLimitError("/statuses/lookup"))},
		resetAt: epoch.Add(5 * time.Second),
	}
	records, failures := &memRecords{}, &memFailures{}
	log := logger.NewTestLogger()
	h := New(client, records, failures, Options{Clock: clock, Logger: log})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{7, 8}}})
	require.NoError(t, err)

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.GreaterOrEqual(t, sleeps[0], 5*time.Second)
	assert.Less(t, sleeps[0], 7*time.Second)

	// the same batch is re-attempted
	require.Len(t, client.calls, 2)
	assert.Equal(t, client.calls[0], client.calls[1])
	assert.Equal(t, []uint64{7, 8}, records.ids)
	assert.Equal(t, 2, stats.Captured)
	assert.True(t, log.HasMessage("Requests left: 0/900"))
}

func TestRateLimitStatusFailureFallsBackToRetryInterval(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	client := &fakeClient{
		script:    []func([]uint64) ([]twitter.Record, error){fail(errs.NewRateLimitError("/statuses/lookup"))},
		statusErr: errs.New(errs.ErrorTypeNetwork, 0, "boom"),
	}
	h := New(client, &memRecords{}, &memFailures{}, Options{Clock: clock, RetryInterval: 12 * time.Second})

	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{12 * time.Second}, clock.Sleeps())
}

func TestRateLimitInThePastDoesNotWait(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	client := &fakeClient{
		script:  []func([]uint64) ([]twitter.Record, error){fail(errs.NewRateLimitError("/statuses/lookup"))},
		resetAt: epoch.Add(-time.Minute),
	}
	h := New(client, &memRecords{}, &memFailures{}, Options{Clock: clock})

	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0}, clock.Sleeps())
}

func TestTransientErrorsAreRetried(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	transient := errs.New(errs.ErrorTypeServerError, 503, "over capacity")
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){fail(transient), fail(transient)}}
	records := &memRecords{}
	h := New(client, records, &memFailures{}, Options{Clock: clock})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1, 2}}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultRetryInterval, DefaultRetryInterval}, clock.Sleeps())
	assert.Equal(t, 2, stats.Captured)
	assert.Len(t, client.calls, 3)
}

func TestRetryCapAbandonsBatch(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	transient := errors.New("connection reset")
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){
		fail(transient), fail(transient), fail(transient),
	}}
	failures := &memFailures{}
	h := New(client, &memRecords{}, failures, Options{
		Clock:  clock,
		Policy: retry.NewPolicy("constant", time.Second, 2),
	})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{4, 5}, {6}}})
	require.NoError(t, err)

	// first attempt plus two retries, then the next batch succeeds
	assert.Len(t, client.calls, 4)
	assert.Equal(t, []uint64{4, 5}, failures.ids)
	assert.Equal(t, Stats{Total: 3, Captured: 1, Failed: 2}, stats)
}

func TestRateLimitDoesNotCountTowardsRetryCap(t *testing.T) {
	limited := fail(errs.NewRateLimitError("/statuses/lookup"))
	client := &fakeClient{
		script:  []func([]uint64) ([]twitter.Record, error){limited, limited, limited},
		resetAt: epoch,
	}
	failures := &memFailures{}
	h := New(client, &memRecords{}, failures, Options{
		Clock:  retry.NewFakeClock(epoch),
		Policy: retry.NewPolicy("constant", time.Second, 1),
	})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}}})
	require.NoError(t, err)
	assert.Empty(t, failures.ids)
	assert.Equal(t, 1, stats.Captured)
}

func TestAuthErrorIsFatal(t *testing.T) {
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){
		fail(errs.New(errs.ErrorTypeAuth, 401, "Invalid or expired token.")),
	}}
	h := New(client, &memRecords{}, &memFailures{}, Options{Clock: retry.NewFakeClock(epoch)})

	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}, {2}}})
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	assert.Len(t, client.calls, 1)
}

func TestNotFoundIsNotRetried(t *testing.T) {
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){
		fail(errs.New(errs.ErrorTypeNotFound, 404, "No status found with that ID.")),
	}}
	failures := &memFailures{}
	clock := retry.NewFakeClock(epoch)
	h := New(client, &memRecords{}, failures, Options{Clock: clock})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{9, 10}}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{9, 10}, failures.ids)
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 2, stats.Failed)
}

func TestDuplicatesAndUnrequestedRecords(t *testing.T) {
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){
		func([]uint64) ([]twitter.Record, error) {
			return []twitter.Record{rec(5), rec(99)}, nil
		},
	}}
	records, failures := &memRecords{}, &memFailures{}
	log := logger.NewTestLogger()
	h := New(client, records, failures, Options{Clock: retry.NewFakeClock(epoch), Logger: log})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{5, 5}}})
	require.NoError(t, err)

	// one record resolves one occurrence
	assert.Equal(t, []uint64{5}, records.ids)
	assert.Equal(t, []uint64{5}, failures.ids)
	assert.Equal(t, Stats{Total: 2, Captured: 1, Failed: 1}, stats)
	assert.True(t, log.HasMessage("Ignoring record that was not requested"))
}

func TestSkipResolved(t *testing.T) {
	client := &fakeClient{}
	records := &memRecords{}
	h := New(client, records, &memFailures{}, Options{
		Clock: retry.NewFakeClock(epoch),
		Skip:  storage.Resolved{1: {}, 3: {}},
	})

	stats, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1, 2, 3}, {3}}})
	require.NoError(t, err)
	assert.Equal(t, [][]uint64{{2}}, client.calls)
	assert.Equal(t, Stats{Total: 1, Captured: 1, Skipped: 3}, stats)
}

func TestIntervalSpacesLookups(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	var started []time.Time
	client := &fakeClient{}
	slow := func(ids []uint64) ([]twitter.Record, error) {
		started = append(started, clock.Now())
		clock.Advance(2 * time.Second)
		return []twitter.Record{rec(ids[0])}, nil
	}
	client.script = []func([]uint64) ([]twitter.Record, error){slow, slow, slow}
	h := New(client, &memRecords{}, &memFailures{}, Options{Clock: clock, Interval: time.Second})

	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}, {2}, {3}}})
	require.NoError(t, err)

	// the pause starts when a batch ends, however long its lookup took
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	assert.Equal(t, []time.Time{epoch, epoch.Add(3 * time.Second), epoch.Add(6 * time.Second)}, started)
}

func TestInterruptedBatchIsLookedUpOnResume(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "ids_full.json")
	failurePath := filepath.Join(dir, "ids_errors.txt")

	run := func(ctx context.Context, client *fakeClient, clock *retry.FakeClock, mode storage.OpenMode, skip storage.Resolved) Stats {
		records, err := storage.NewRecordWriter(recordPath, mode, false)
		require.NoError(t, err)
		failures, err := storage.NewIDWriter(failurePath, mode, false)
		require.NoError(t, err)
		h := New(client, records, failures, Options{Clock: clock, Skip: skip})

		stats, err := h.Run(ctx, &sliceSource{batches: [][]uint64{{9}, {10, 11}, {12}}})
		require.NoError(t, err)
		require.NoError(t, records.Close())
		require.NoError(t, failures.Close())
		return stats
	}

	// id 9 resolves, then the server limits the next batch and the wait for
	// the reset is cut short
	ctx, cancel := context.WithCancel(context.Background())
	clock := retry.NewFakeClock(epoch)
	clock.OnSleep = func(time.Duration) { cancel() }
	first := &fakeClient{
		script: []func([]uint64) ([]twitter.Record, error){
			func(ids []uint64) ([]twitter.Record, error) { return []twitter.Record{rec(9)}, nil },
			fail(errs.NewRateLimitError("/statuses/lookup")),
		},
		resetAt: epoch.Add(time.Minute),
	}
	stats := run(ctx, first, clock, storage.Truncate, nil)

	assert.Equal(t, Stats{Total: 1, Captured: 1, Interrupted: true}, stats)
	assert.Equal(t, [][]uint64{{9}, {10, 11}}, first.calls, "no batch is started after the interrupt")
	failed, err := os.ReadFile(failurePath)
	require.NoError(t, err)
	assert.Empty(t, string(failed), "an interrupted batch is not a failure")

	resolved, err := storage.ScanResolved(recordPath, failurePath)
	require.NoError(t, err)
	assert.Equal(t, storage.Resolved{9: {}}, resolved)

	second := &fakeClient{}
	stats = run(context.Background(), second, retry.NewFakeClock(epoch), storage.Append, resolved)

	assert.Equal(t, [][]uint64{{10, 11}, {12}}, second.calls)
	assert.Equal(t, Stats{Total: 3, Captured: 3, Skipped: 1}, stats)
	full, err := os.ReadFile(recordPath)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":9}\n{\"id\":10}\n{\"id\":11}\n{\"id\":12}\n", string(full))
}

func TestProgressReporting(t *testing.T) {
	clock := retry.NewFakeClock(epoch)
	log := logger.NewTestLogger()
	client := &fakeClient{script: []func([]uint64) ([]twitter.Record, error){
		func(ids []uint64) ([]twitter.Record, error) {
			clock.Advance(11 * time.Second)
			return []twitter.Record{rec(ids[0])}, nil
		},
	}}
	h := New(client, &memRecords{}, &memFailures{}, Options{Clock: clock, Logger: log})

	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}, {2}}})
	require.NoError(t, err)

	assert.True(t, log.HasMessage("Captured 1/1 tweets."))
	assert.False(t, log.HasMessage("Captured 2/2 tweets."), "second batch finished inside the interval")
	assert.True(t, log.HasMessage("Captured 2/2 total tweets."))
}

func TestSinkErrorIsFatal(t *testing.T) {
	h := New(&fakeClient{}, failingRecords{}, &memFailures{}, Options{Clock: retry.NewFakeClock(epoch)})
	_, err := h.Run(context.Background(), &sliceSource{batches: [][]uint64{{1}}})
	assert.ErrorContains(t, err, "record sink")
}

type failingRecords struct{}

func (failingRecords) WriteRecord(context.Context, twitter.Record) error { return errors.New("disk full") }
func (failingRecords) Close() error                                      { return nil }

// Every identifier read ends in exactly one sink, whatever the server does.
func TestEveryIdentifierLandsInExactlyOneSink(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		var batches [][]uint64
		want := map[uint64]int{}
		for b := 0; b < 1+rng.Intn(5); b++ {
			var batch []uint64
			for i := 0; i < 1+rng.Intn(10); i++ {
				id := uint64(1 + rng.Intn(30))
				batch = append(batch, id)
				want[id]++
			}
			batches = append(batches, batch)
		}

		var script []func([]uint64) ([]twitter.Record, error)
		for i := 0; i < 20; i++ {
			switch rng.Intn(4) {
			case 0:
				script = append(script, fail(errs.NewRateLimitError("/statuses/lookup")))
			case 1:
				script = append(script, fail(errors.New("reset")))
			case 2:
				script = append(script, fail(errs.New(errs.ErrorTypeNotFound, 404, "gone")))
			default:
				script = append(script, func(ids []uint64) ([]twitter.Record, error) {
					var out []twitter.Record
					for _, id := range ids {
						if rng.Intn(3) > 0 {
							out = append(out, rec(id))
						}
					}
					return out, nil
				})
			}
		}

		client := &fakeClient{script: script, resetAt: epoch}
		records, failures := &memRecords{}, &memFailures{}
		h := New(client, records, failures, Options{
			Clock:  retry.NewFakeClock(epoch),
			Policy: retry.NewPolicy("constant", time.Second, rng.Intn(3)),
		})

		stats, err := h.Run(context.Background(), &sliceSource{batches: batches})
		require.NoError(t, err)

		got := map[uint64]int{}
		for _, id := range records.ids {
			got[id]++
		}
		for _, id := range failures.ids {
			got[id]++
		}
		assert.Equal(t, want, got, "round %d", round)
		assert.Equal(t, stats.Total, stats.Captured+stats.Failed)
	}
}

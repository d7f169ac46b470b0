// Package metrics exposes harvesting progress as Prometheus metrics.
//
// Metrics:
//   - tweetharvest_identifiers_total (Counter): identifiers read for lookup
//   - tweetharvest_records_captured_total (Counter): records written to the record sink
//   - tweetharvest_identifiers_failed_total (Counter): identifiers written to the failure sink
//   - tweetharvest_rate_limit_waits_total{resource} (Counter): rate limit backoffs
//   - tweetharvest_rate_limit_wait_seconds{resource} (Histogram): time spent in those backoffs
//   - tweetharvest_request_errors_total{kind} (Counter): failed API calls by error type
//   - tweetharvest_search_pages_total (Counter): search pages fetched
//   - tweetharvest_search_rows_total (Counter): rows written to the tabular sink
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tweetharvest/pkg/logger"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	identifiers    prometheus.Counter
	captured       prometheus.Counter
	failed         prometheus.Counter
	rateLimitWaits *prometheus.CounterVec
	rateLimitSecs  *prometheus.HistogramVec
	requestErrors  *prometheus.CounterVec
	searchPages    prometheus.Counter
	searchRows     prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		identifiers: f.NewCounter(prometheus.CounterOpts{
			Name: "tweetharvest_identifiers_total",
			Help: "Identifiers read for lookup",
		}),
		captured: f.NewCounter(prometheus.CounterOpts{
			Name: "tweetharvest_records_captured_total",
			Help: "Records written to the record sink",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "tweetharvest_identifiers_failed_total",
			Help: "Identifiers written to the failure sink",
		}),
		rateLimitWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tweetharvest_rate_limit_waits_total",
			Help: "Backoffs caused by an exhausted rate limit window",
		}, []string{"resource"}),
		rateLimitSecs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tweetharvest_rate_limit_wait_seconds",
			Help:    "Duration of rate limit backoffs",
			Buckets: []float64{1, 5, 15, 60, 180, 450, 900},
		}, []string{"resource"}),
		requestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tweetharvest_request_errors_total",
			Help: "Failed API calls by error type",
		}, []string{"kind"}),
		searchPages: f.NewCounter(prometheus.CounterOpts{
			Name: "tweetharvest_search_pages_total",
			Help: "Search pages fetched",
		}),
		searchRows: f.NewCounter(prometheus.CounterOpts{
			Name: "tweetharvest_search_rows_total",
			Help: "Rows written to the tabular sink",
		}),
	}
}

func (m *Metrics) Identifiers(n int) {
	if m != nil {
		m.identifiers.Add(float64(n))
	}
}

func (m *Metrics) Captured(n int) {
	if m != nil {
		m.captured.Add(float64(n))
	}
}

func (m *Metrics) Failed(n int) {
	if m != nil {
		m.failed.Add(float64(n))
	}
}

// RateLimitWait records one backoff of d for resource.
func (m *Metrics) RateLimitWait(resource string, d time.Duration) {
	if m != nil {
		m.rateLimitWaits.WithLabelValues(resource).Inc()
		m.rateLimitSecs.WithLabelValues(resource).Observe(d.Seconds())
	}
}

func (m *Metrics) RequestError(kind string) {
	if m != nil {
		m.requestErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SearchPage() {
	if m != nil {
		m.searchPages.Inc()
	}
}

func (m *Metrics) SearchRows(n int) {
	if m != nil {
		m.searchRows.Add(float64(n))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart(log, "metrics", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		logger.LogComponentStop(log, "metrics", "shutdown")
		return err
	}
}

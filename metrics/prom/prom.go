package prom

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters, gauges
// and a load latency histogram.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	latency  prometheus.Histogram
	disposed *prometheus.CounterVec
	resident prometheus.Gauge
	inFlight prometheus.Gauge

	// own is the scope used by the Adapter's own Size.
	own Scope
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// The Adapter itself serves one manager. Managers that share it (one per
// viewer, say) must each report through their own Scope so the gauges sum
// across them.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "loads_started_total",
			Help:        "Tile loads dispatched",
			ConstLabels: constLabels,
		}),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_finished_total",
				Help:        "Tile loads that reported, by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Time from dispatch to loader return",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
			ConstLabels: constLabels,
		}),
		disposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "disposed_total",
				Help:        "Tiles and models released, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "tiles_resident",
			Help:        "Number of cached tiles (loading and ready)",
			ConstLabels: constLabels,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "loads_in_flight",
			Help:        "Loads awaiting completion",
			ConstLabels: constLabels,
		}),
	}
	a.own.a = a
	reg.MustRegister(a.started, a.finished, a.latency, a.disposed, a.resident, a.inFlight)
	return a
}

// LoadStarted increments the dispatch counter.
func (a *Adapter) LoadStarted() { a.started.Inc() }

// LoadFinished counts a reported load and observes its latency.
func (a *Adapter) LoadFinished(ok bool, took time.Duration) {
	result := "error"
	if ok {
		result = "ok"
	}
	a.finished.WithLabelValues(result).Inc()
	a.latency.Observe(took.Seconds())
}

// Disposed increments the disposal counter with a reason label.
func (a *Adapter) Disposed(r cache.DisposeReason) {
	a.disposed.WithLabelValues(r.String()).Inc()
}

// Size reports the sizes of the Adapter's own manager.
func (a *Adapter) Size(resident, inFlight int) { a.own.Size(resident, inFlight) }

// Scope returns a cache.Metrics for one more manager. Counters are shared
// with the Adapter; gauges add this manager's sizes to the totals.
func (a *Adapter) Scope() *Scope { return &Scope{a: a} }

// Scope is the per-manager view of an Adapter. It remembers the sizes its
// manager reported last and moves the shared gauges by the difference.
// A closed manager reports zero sizes, which takes it out of the totals.
type Scope struct {
	a *Adapter

	mu               sync.Mutex
	resident, flight int
}

func (s *Scope) LoadStarted()                             { s.a.LoadStarted() }
func (s *Scope) LoadFinished(ok bool, took time.Duration) { s.a.LoadFinished(ok, took) }
func (s *Scope) Disposed(r cache.DisposeReason)           { s.a.Disposed(r) }

// Size moves the shared gauges by the change since the last report.
func (s *Scope) Size(resident, inFlight int) {
	s.mu.Lock()
	dr, df := resident-s.resident, inFlight-s.flight
	s.resident, s.flight = resident, inFlight
	s.mu.Unlock()

	if dr != 0 {
		s.a.resident.Add(float64(dr))
	}
	if df != 0 {
		s.a.inFlight.Add(float64(df))
	}
}

// Compile-time checks.
var (
	_ cache.Metrics = (*Adapter)(nil)
	_ cache.Metrics = (*Scope)(nil)
)

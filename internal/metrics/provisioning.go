package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Label values recorded for lookups and creates.
const (
	LookupPresent   = "present"
	LookupAbsent    = "absent"
	LookupMalformed = "malformed"
	LookupError     = "error"

	CreateOK     = "created"
	CreateFailed = "failed"
)

// Recorder tracks the instruments of one provisioning run. A nil Recorder
// is valid and records nothing, so callers can leave metrics unwired.
type Recorder struct {
	registry *Registry

	lookups     *prometheus.CounterVec
	creates     *prometheus.CounterVec
	catalogSize prometheus.Gauge
	runDuration prometheus.Gauge
}

// NewRecorder registers the provisioning instruments on reg.
func NewRecorder(reg *Registry) *Recorder {
	ns := reg.Namespace()

	r := &Recorder{
		registry: reg,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "service_lookups_total",
			Help:      "Service existence lookups by outcome.",
		}, []string{"outcome"}),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "service_creates_total",
			Help:      "Service creation attempts by outcome.",
		}, []string{"outcome"}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "catalog_size",
			Help:      "Number of catalog entries in the current run.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of the last provisioning run.",
		}),
	}

	reg.Register(r.lookups)
	reg.Register(r.creates)
	reg.Register(r.catalogSize)
	reg.Register(r.runDuration)

	return r
}

// Lookup records one existence check outcome.
func (r *Recorder) Lookup(outcome string) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(outcome).Inc()
}

// Create records one creation attempt outcome.
func (r *Recorder) Create(outcome string) {
	if r == nil {
		return
	}
	r.creates.WithLabelValues(outcome).Inc()
}

// SetCatalogSize records how many entries the run walked.
func (r *Recorder) SetCatalogSize(n int) {
	if r == nil {
		return
	}
	r.catalogSize.Set(float64(n))
}

// SetRunDuration records how long the run took.
func (r *Recorder) SetRunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// Push delivers the run's metrics to the Pushgateway at url under job.
// A nil Recorder or empty url is a no-op.
func (r *Recorder) Push(url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if job == "" {
		job = "rangerprov"
	}

	pusher := push.New(url, job).
		Gatherer(r.registry.Raw()).
		Client(&http.Client{Timeout: 10 * time.Second})

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

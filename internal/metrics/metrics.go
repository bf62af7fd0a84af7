package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idhunt"

// Probes holds the probe collectors of one run.
// A nil *Probes is valid and records nothing.
type Probes struct {
	registry  *prometheus.Registry
	outcomes  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	cancelled prometheus.Counter
	pivots    prometheus.Counter
}

// NewProbes creates the collectors on a fresh registry.
func NewProbes() *Probes {
	p := &Probes{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "outcomes_total",
			Help:      "Probe results by source kind and outcome",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Probe latency by source kind",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"kind"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "cancelled_total",
			Help:      "Probes abandoned because the run was cancelled",
		}),
		pivots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlate",
			Name:      "pivots_total",
			Help:      "Aliases discovered in seed profiles",
		}),
	}
	p.registry.MustRegister(p.outcomes, p.latency, p.cancelled, p.pivots)
	return p
}

// Observe records a resolved probe.
func (p *Probes) Observe(kind, outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(kind, outcome).Inc()
	p.latency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Cancelled records an abandoned probe.
func (p *Probes) Cancelled() {
	if p == nil {
		return
	}
	p.cancelled.Inc()
}

// Pivot records a discovered alias.
func (p *Probes) Pivot() {
	if p == nil {
		return
	}
	p.pivots.Inc()
}

// Registry returns the registry the collectors live on.
func (p *Probes) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes the metrics in the text exposition format,
// atomically replacing path.
func (p *Probes) WriteTextfile(path string) error {
	if p == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
